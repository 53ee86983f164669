package jwt

import (
	"testing"
	"time"
)

// FuzzVerify feeds arbitrary strings to the verifier.
// Goal: no panics; anything that is not an issued token is rejected.
func FuzzVerify(f *testing.F) {
	mgr, err := NewManager(Config{
		TTL:           5 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("fuzz-secret-fuzz-secret-fuzz-secret"),
		Issuer:        "fuzz-test",
		Leeway:        30 * time.Second,
		KeyID:         "k1",
	})
	if err != nil {
		f.Fatal(err)
	}

	validToken, _, err := mgr.Issue("uid1", "sid1")
	if err != nil {
		f.Fatal(err)
	}

	f.Add(validToken)
	f.Add("")
	f.Add(".")
	f.Add("..")
	f.Add("not.a.jwt")
	f.Add("a.b.c.d")
	f.Add("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ0ZXN0In0.invalid")
	f.Add("eyJhbGciOiJub25lIn0.eyJzdWIiOiJ0ZXN0In0.")

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := mgr.Verify(input)
		if err != nil {
			if claims != nil {
				t.Fatal("Verify returned claims together with an error")
			}
			return
		}
		if claims == nil {
			t.Fatal("Verify returned nil claims without error")
		}
		if input != validToken {
			t.Fatalf("Verify accepted a token that was never issued: %q", input)
		}
	})
}
