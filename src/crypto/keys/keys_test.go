package keys

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	ccrypto "github.com/mosaicnetworks/chorus/src/crypto"
)

func TestSimpleKeyfile(t *testing.T) {
	dir := t.TempDir()

	simpleKeyfile := NewSimpleKeyfile(filepath.Join(dir, "priv_key"))

	// Try a read, should get nothing
	key, err := simpleKeyfile.ReadKey()
	if err == nil {
		t.Fatalf("ReadKey should generate an error")
	}
	if key != nil {
		t.Fatalf("key is not nil")
	}

	key, _ = GenerateECDSAKey()

	if err := simpleKeyfile.WriteKey(key); err != nil {
		t.Fatalf("err: %v", err)
	}

	nKey, err := simpleKeyfile.ReadKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !reflect.DeepEqual(DumpPrivateKey(nKey), DumpPrivateKey(key)) {
		t.Fatalf("Keys do not match")
	}

	if PublicKeyHex(&nKey.PublicKey) != PublicKeyHex(&key.PublicKey) {
		t.Fatalf("Public keys do not match")
	}
}

func TestFilePermissions(t *testing.T) {
	dir := t.TempDir()

	key, _ := GenerateECDSAKey()
	rawKey := []byte(PrivateKeyHex(key))

	shouldErr := []os.FileMode{
		0777, 0766, 0744,
		0677, 0666, 0644,
		0477, 0466, 0444,
	}

	for _, fm := range shouldErr {
		p := filepath.Join(dir, fmt.Sprintf("priv_key_bad_%o", fm))
		os.WriteFile(p, rawKey, 0600)
		os.Chmod(p, fm)

		if _, err := NewSimpleKeyfile(p).ReadKey(); err == nil {
			t.Fatalf("%o || ReadKey should return permissions error", fm)
		}
	}

	shouldNotErr := []os.FileMode{
		0700, 0600, 0500, 0400,
	}

	for _, fm := range shouldNotErr {
		p := filepath.Join(dir, fmt.Sprintf("priv_key_good_%o", fm))
		os.WriteFile(p, rawKey, 0600)
		os.Chmod(p, fm)

		if _, err := NewSimpleKeyfile(p).ReadKey(); err != nil {
			t.Fatalf("%o || ReadKey should not return error. Got %v", fm, err)
		}
	}
}

func TestSignatureEncoding(t *testing.T) {
	privKey, _ := GenerateECDSAKey()

	msgHashBytes := ccrypto.SHA256([]byte("J'aime mieux forger mon ame que la meubler"))

	r, s, _ := Sign(privKey, msgHashBytes)

	dr, ds, err := DecodeSignature(EncodeSignature(r, s))
	if err != nil {
		t.Fatal(err)
	}

	if r.Cmp(dr) != 0 {
		t.Fatalf("Signature Rs differ")
	}

	if s.Cmp(ds) != 0 {
		t.Fatalf("Signature Ss differ")
	}

	if _, _, err := DecodeSignature("not-a-signature"); err == nil {
		t.Fatalf("DecodeSignature should fail on malformed input")
	}

	if _, _, err := DecodeSignature("zz|!!"); err == nil {
		t.Fatalf("DecodeSignature should fail on invalid base-36 values")
	}
}

func TestECDSASignerVerifier(t *testing.T) {
	key, _ := GenerateECDSAKey()
	other, _ := GenerateECDSAKey()

	signer := NewECDSASigner(key)
	verifier := ECDSAVerifier{}

	data := ccrypto.SHA256([]byte("event body"))

	sig, err := signer.Sign(data)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := verifier.Verify(signer.PublicKeyBytes(), data, sig)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("signature should verify against the signer's key")
	}

	ok, err = verifier.Verify(FromPublicKey(&other.PublicKey), data, sig)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatalf("signature should not verify against another key")
	}

	if _, err := verifier.Verify([]byte("garbage"), data, sig); err == nil {
		t.Fatalf("Verify should fail on an invalid public key")
	}
}

func TestParsePrivateKey(t *testing.T) {
	key, _ := GenerateECDSAKey()

	parsed, err := ParsePrivateKey(DumpPrivateKey(key))
	if err != nil {
		t.Fatal(err)
	}
	if parsed.D.Cmp(key.D) != 0 {
		t.Fatalf("D values differ")
	}

	if _, err := ParsePrivateKey([]byte{1, 2, 3}); err == nil {
		t.Fatalf("short keys should be rejected")
	}

	if _, err := ParsePrivateKey(make([]byte, 32)); err == nil {
		t.Fatalf("zero key should be rejected")
	}
}
