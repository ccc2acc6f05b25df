package r2s3

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	sigV4Algorithm = "AWS4-HMAC-SHA256"
	amzTimeFormat  = "20060102T150405Z"
	metaPrefix     = "x-amz-meta-"
)

// signer signs S3 requests with AWS Signature V4. R2 accepts region "auto".
type signer struct {
	accessKeyID string
	secret      string
	region      string
	service     string
	now         func() time.Time
}

func newSigner(accessKeyID, secret string) signer {
	return signer{
		accessKeyID: accessKeyID,
		secret:      secret,
		region:      "auto",
		service:     "s3",
		now:         time.Now,
	}
}

// Sign stamps req and sets its Authorization header. Host, Content-Type and
// every x-amz-* header are signed, so object metadata cannot be altered in
// transit.
func (s signer) Sign(req *http.Request, payloadHash string) {
	t := s.now().UTC()
	stamp := t.Format(amzTimeFormat)
	day := stamp[:8]
	req.Header.Set("x-amz-date", stamp)
	req.Header.Set("x-amz-content-sha256", payloadHash)

	signed, headerBlock := canonicalHeaders(req)
	canonical := strings.Join([]string{
		req.Method,
		req.URL.EscapedPath(),
		req.URL.RawQuery,
		headerBlock,
		signed,
		payloadHash,
	}, "\n")

	scope := day + "/" + s.region + "/" + s.service + "/aws4_request"
	digest := sha256.Sum256([]byte(canonical))
	toSign := sigV4Algorithm + "\n" + stamp + "\n" + scope + "\n" + hex.EncodeToString(digest[:])
	sig := hex.EncodeToString(hmacSHA256(s.key(day), []byte(toSign)))

	req.Header.Set("Authorization", sigV4Algorithm+
		" Credential="+s.accessKeyID+"/"+scope+
		", SignedHeaders="+signed+
		", Signature="+sig)
}

// key derives the day's signing key.
func (s signer) key(day string) []byte {
	k := []byte("AWS4" + s.secret)
	for _, part := range []string{day, s.region, s.service, "aws4_request"} {
		k = hmacSHA256(k, []byte(part))
	}
	return k
}

// canonicalHeaders returns the signed header list and the canonical header
// block, both sorted by lower-cased name.
func canonicalHeaders(req *http.Request) (signed, block string) {
	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	vals := map[string]string{"host": host}
	for name, v := range req.Header {
		n := strings.ToLower(name)
		if n == "content-type" || strings.HasPrefix(n, "x-amz-") {
			vals[n] = strings.Join(strings.Fields(strings.Join(v, ",")), " ")
		}
	}
	names := make([]string, 0, len(vals))
	for n := range vals {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, n := range names {
		b.WriteString(n)
		b.WriteByte(':')
		b.WriteString(vals[n])
		b.WriteByte('\n')
	}
	return strings.Join(names, ";"), b.String()
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	_, _ = h.Write(data)
	return h.Sum(nil)
}
