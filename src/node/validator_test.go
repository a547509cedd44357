package node

import (
	"bytes"
	"sync"
	"testing"

	"github.com/ashwinbangalore/irohaBG/src/crypto/keys"
)

func TestValidatorConcurrentReads(t *testing.T) {
	key, err := keys.GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}
	v := NewValidator(key, "validator")

	wantHex := keys.PublicKeyHex(&key.PublicKey)
	wantBytes := keys.FromPublicKey(&key.PublicKey)
	wantID := keys.PublicKeyID(wantBytes)

	var wg sync.WaitGroup
	errs := make(chan string, 48)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v.PublicKeyHex() != wantHex {
				errs <- "hex"
			}
			if !bytes.Equal(v.PublicKeyBytes(), wantBytes) {
				errs <- "bytes"
			}
			if v.ID() != wantID {
				errs <- "id"
			}
		}()
	}
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Fatalf("unexpected validator %s", e)
	}
}
