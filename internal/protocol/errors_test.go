package protocol

import (
	"errors"
	"fmt"
	"testing"

	"heightmap.ai/internal/sim/terrain/gen"
)

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrBadRequest,
		ErrSizeExceeded,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestCodeFor(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: 2^11+1 > 2^10+1", gen.ErrSizeExceeded), ErrSizeExceeded},
		{fmt.Errorf("%w: width", gen.ErrInvalidConfig), ErrBadRequest},
		{fmt.Errorf("%w: no neighbours", gen.ErrInvariant), ErrInternal},
		{&RequestError{Code: ErrProtoBadRequest, Err: errors.New("bad json")}, ErrProtoBadRequest},
		{errors.New("disk full"), ErrInternal},
	}
	for _, tc := range cases {
		if got := CodeFor(tc.err); got != tc.want {
			t.Fatalf("CodeFor(%v)=%q want %q", tc.err, got, tc.want)
		}
	}

	msg := NewError("r1", fmt.Errorf("%w: too big", gen.ErrSizeExceeded))
	if msg.Type != TypeError || msg.ProtocolVersion != Version || msg.Code != ErrSizeExceeded || msg.RequestID != "r1" {
		t.Fatalf("unexpected error message: %+v", msg)
	}
}
