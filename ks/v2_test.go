package ks

import (
	"bytes"
	"errors"
	"io"
	"net/url"
	"reflect"
	"sync"
	"testing"
)

type constReader byte

func (r constReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r)
	}
	return len(p), nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func decryptV2(t *testing.T, token, secret, pid string) []byte {
	t.Helper()
	raw := decodeRaw(t, token)
	prefix := "v2|" + pid + "|"
	if !bytes.HasPrefix(raw, []byte(prefix)) {
		t.Fatalf("envelope does not start with %q: %q", prefix, raw[:min(len(raw), 16)])
	}
	plain, err := Decrypt(DeriveKey(secret), IV[:], raw[len(prefix):])
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	return bytes.TrimRight(plain, "\x00")
}

func TestV2EnvelopeAndBody(t *testing.T) {
	g := NewGenerator(Config{Random: constReader(0)})
	token, err := g.V2(Params{
		Secret:        "s3cr3t",
		UserID:        "u@example.com",
		PartnerID:     123,
		ExpirySeconds: 3600,
		Privileges:    "disableentitlement,sview:0_x",
	})
	if err != nil {
		t.Fatalf("V2 failed: %v", err)
	}

	plain := decryptV2(t, token, "s3cr3t", "123")
	body := plain[DigestSize:]

	sum := Digest(body)
	reverseBytes(sum[:])
	if !bytes.Equal(sum[:], plain[:DigestSize]) {
		t.Fatal("leading bytes are not the reversed body digest")
	}
	if !bytes.Equal(body[:NonceSize], bytes.Repeat([]byte{'A'}, NonceSize)) {
		t.Fatalf("unexpected nonce: %q", body[:NonceSize])
	}

	query := string(body[NonceSize:])
	if query != "_e=3600&_u=u%40example.com&_t=0&disableentitlement=&sview=0_x" {
		t.Fatalf("unexpected fields: %s", query)
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		t.Fatalf("fields are not a query string: %v", err)
	}
	for _, key := range []string{"_e", "_u", "_t"} {
		if !values.Has(key) {
			t.Fatalf("missing %s", key)
		}
	}
}

func TestV2EmptyPrivilegesHasOnlyReservedFields(t *testing.T) {
	token, err := NewGenerator(Config{}).V2(Params{Secret: "k", UserID: "u", PartnerID: 5})
	if err != nil {
		t.Fatalf("V2 failed: %v", err)
	}
	parsed, err := Parse(token, "k")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := []Field{{Key: "_e", Value: "86400"}, {Key: "_u", Value: "u"}, {Key: "_t", Value: "0"}}
	if !reflect.DeepEqual(parsed.Fields, want) {
		t.Fatalf("unexpected fields: %#v", parsed.Fields)
	}
	if len(parsed.Privileges) != 0 {
		t.Fatalf("expected no privileges, got %#v", parsed.Privileges)
	}
}

func TestV2ReservedKeysWin(t *testing.T) {
	token, err := NewGenerator(Config{}).V2(Params{
		Secret:        "k",
		UserID:        "real",
		PartnerID:     1,
		ExpirySeconds: 10,
		Privileges:    "_u:impostor,_e:999999,_t:2,list:*",
	})
	if err != nil {
		t.Fatalf("V2 failed: %v", err)
	}
	parsed, err := Parse(token, "k")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.UserID != "real" || parsed.Duration != 10 {
		t.Fatalf("reserved keys overridden: %+v", parsed)
	}
	want := []Privilege{{Key: "list", Value: "*"}}
	if !reflect.DeepEqual(parsed.Privileges, want) {
		t.Fatalf("unexpected privileges: %#v", parsed.Privileges)
	}
}

func TestV2RoundTripKeepsDuplicatesAndOrder(t *testing.T) {
	token, err := Default().V2(Params{
		Secret:     "k",
		UserID:     "u",
		PartnerID:  42,
		Privileges: "*,sview:a,sview:b,edit:1",
	})
	if err != nil {
		t.Fatalf("V2 failed: %v", err)
	}
	parsed, err := Parse(token, "k")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.Version != V2 || parsed.PartnerID != 42 || parsed.Duration != DefaultExpiry {
		t.Fatalf("unexpected token: %+v", parsed)
	}
	want := []Privilege{{Key: "all", Value: "*"}, {Key: "sview", Value: "a"}, {Key: "sview", Value: "b"}, {Key: "edit", Value: "1"}}
	if !reflect.DeepEqual(parsed.Privileges, want) {
		t.Fatalf("unexpected privileges: %#v", parsed.Privileges)
	}
}

func TestV2NonceRangeAndUniqueness(t *testing.T) {
	g := Default()
	p := Params{Secret: "k", UserID: "u", PartnerID: 1}
	seen := map[string]bool{}
	for i := 0; i < 32; i++ {
		token, err := g.V2(p)
		if err != nil {
			t.Fatalf("V2 failed: %v", err)
		}
		if seen[token] {
			t.Fatal("identical v2 tokens for identical inputs")
		}
		seen[token] = true

		parsed, err := Parse(token, "k")
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		for _, b := range parsed.Nonce {
			if b < 65 || b > 125 {
				t.Fatalf("nonce byte %d out of range", b)
			}
		}
	}
}

func TestV2RandomFailureIsCryptoError(t *testing.T) {
	token, err := NewGenerator(Config{Random: failingReader{}}).V2(Params{Secret: "k"})
	if !errors.Is(err, ErrCrypto) {
		t.Fatalf("expected ErrCrypto, got %v", err)
	}
	if token != "" {
		t.Fatalf("expected no token, got %q", token)
	}
}

func TestV2WrongSecretRejected(t *testing.T) {
	token, err := Default().V2(Params{Secret: "right", UserID: "u", PartnerID: 1})
	if err != nil {
		t.Fatalf("V2 failed: %v", err)
	}
	if _, err := Parse(token, "wrong"); !errors.Is(err, ErrSignature) {
		t.Fatalf("expected ErrSignature, got %v", err)
	}
}

func TestV2EscapesValues(t *testing.T) {
	token, err := NewGenerator(Config{Random: constReader(1)}).V2(Params{
		Secret:     "k",
		UserID:     "a&b=c d",
		Privileges: "privacycontext:x&y",
	})
	if err != nil {
		t.Fatalf("V2 failed: %v", err)
	}
	plain := decryptV2(t, token, "k", "0")
	query := string(plain[DigestSize+NonceSize:])
	if query != "_e=86400&_u=a%26b%3Dc+d&_t=0&privacycontext=x%26y" {
		t.Fatalf("unexpected escaping: %s", query)
	}
}

func TestGeneratorConcurrentUse(t *testing.T) {
	g := Default()
	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := V1
			if i%2 == 0 {
				v = V2
			}
			token, err := g.Generate(v, Params{Secret: "k", UserID: "u", PartnerID: i})
			if err != nil {
				errs <- err
				return
			}
			parsed, err := Parse(token, "k")
			if err != nil {
				errs <- err
				return
			}
			if parsed.PartnerID != i {
				errs <- errors.New("partner id mismatch")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}
