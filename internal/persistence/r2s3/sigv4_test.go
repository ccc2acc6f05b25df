package r2s3

import (
	"net/http"
	"testing"
	"time"
)

func TestSigner_KnownSignature(t *testing.T) {
	s := newSigner("AKID", "secret")
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	req, err := http.NewRequest(http.MethodPut, "https://r2.example.com/maps/images/a.png", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("x-amz-meta-run-id", "run_1")
	s.Sign(req, "6ec9c2b0eb14010746c8bce8939303b382344b296206612eb8a907a37b2b2f37")

	want := "AWS4-HMAC-SHA256 Credential=AKID/20240501/auto/s3/aws4_request, " +
		"SignedHeaders=content-type;host;x-amz-content-sha256;x-amz-date;x-amz-meta-run-id, " +
		"Signature=de06fd3841a1b4bd901fed7b3aa4a2364cd8ed3e33756f1dd680be78b9f89b96"
	if got := req.Header.Get("Authorization"); got != want {
		t.Fatalf("Authorization=%q\nwant %q", got, want)
	}
	if got := req.Header.Get("x-amz-date"); got != "20240501T120000Z" {
		t.Fatalf("x-amz-date=%q", got)
	}
}

func TestCanonicalHeaders_SkipsUnsigned(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPut, "http://host:9000/b/k", nil)
	req.Header.Set("User-Agent", "x")
	req.Header.Set("X-Amz-Meta-Kind", "  image   png ")
	signed, block := canonicalHeaders(req)
	if signed != "host;x-amz-meta-kind" {
		t.Fatalf("signed=%q", signed)
	}
	if block != "host:host:9000\nx-amz-meta-kind:image png\n" {
		t.Fatalf("block=%q", block)
	}
}
