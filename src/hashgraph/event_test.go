package hashgraph

import (
	"bytes"
	"testing"

	"github.com/mosaicnetworks/chorus/src/crypto/keys"
)

func createDummyEventBody(t *testing.T) (EventBody, *keys.ECDSASigner) {
	key, err := keys.GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}
	signer := keys.NewECDSASigner(key)

	body := EventBody{
		Transactions: [][]byte{[]byte("abc"), []byte("def")},
		Parents:      []string{"self", "other"},
		Creator:      signer.PublicKeyBytes(),
		Index:        1,
		Timestamp:    1234,
	}
	return body, signer
}

func TestMarshallBody(t *testing.T) {
	body, _ := createDummyEventBody(t)

	raw, err := body.Marshal()
	if err != nil {
		t.Fatalf("Error marshalling EventBody: %s", err)
	}

	newBody := new(EventBody)
	if err := newBody.Unmarshal(raw); err != nil {
		t.Fatalf("Error unmarshalling EventBody: %s", err)
	}

	if !bytes.Equal(newBody.Creator, body.Creator) ||
		newBody.Index != body.Index ||
		newBody.Timestamp != body.Timestamp ||
		len(newBody.Transactions) != 2 ||
		newBody.Parents[1] != "other" {
		t.Fatalf("Bodies are not deeply equal")
	}
}

func TestHashIgnoresEmptyPayloadRepresentation(t *testing.T) {
	body, _ := createDummyEventBody(t)

	body.Transactions = nil
	h1, err := body.Hash()
	if err != nil {
		t.Fatal(err)
	}

	body.Transactions = [][]byte{}
	h2, err := body.Hash()
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(h1, h2) {
		t.Fatal("nil and empty payloads should hash the same")
	}

	body.Transactions = [][]byte{[]byte("x")}
	h3, _ := body.Hash()
	if bytes.Equal(h1, h3) {
		t.Fatal("payload must be part of the hash")
	}
}

func TestSignEvent(t *testing.T) {
	body, signer := createDummyEventBody(t)

	event := &Event{Body: body}
	if err := event.Sign(signer); err != nil {
		t.Fatalf("Error signing Event: %s", err)
	}

	res, err := event.Verify(keys.ECDSAVerifier{})
	if err != nil {
		t.Fatalf("Error verifying signature: %s", err)
	}
	if !res {
		t.Fatal("Verify returned false")
	}

	//the signature is not part of the hash
	hash := event.Hex()
	event.Signature = ""
	event.hex = ""
	event.hash = nil
	if event.Hex() != hash {
		t.Fatal("hash depends on the signature")
	}
}

func TestVerifyTamperedEvent(t *testing.T) {
	body, signer := createDummyEventBody(t)

	event := &Event{Body: body}
	if err := event.Sign(signer); err != nil {
		t.Fatal(err)
	}

	event.Body.Timestamp++

	res, err := event.Verify(keys.ECDSAVerifier{})
	if err != nil {
		t.Fatal(err)
	}
	if res {
		t.Fatal("tampered event should not verify")
	}
}

func TestWireEvent(t *testing.T) {
	body, signer := createDummyEventBody(t)

	event := &Event{Body: body}
	if err := event.Sign(signer); err != nil {
		t.Fatal(err)
	}
	event.setRound(3, true)

	copied := event.ToWire().ToEvent()

	if copied.Hex() != event.Hex() || copied.Signature != event.Signature {
		t.Fatal("wire form should preserve hash and signature")
	}
	if copied.GetRound() != nil || copied.IsWitness() {
		t.Fatal("derived data should not travel")
	}
}

func TestSelfAndOtherParent(t *testing.T) {
	e := NewEvent(nil, []string{"", "op"}, []byte{1}, 0, 0)
	if e.SelfParent() != "" || e.OtherParent() != "op" {
		t.Fatal("wrong parents")
	}

	e = NewEvent(nil, nil, []byte{1}, 0, 0)
	if e.SelfParent() != "" || e.OtherParent() != "" {
		t.Fatal("missing parents should read as empty")
	}

	if !e.IsLoaded() {
		t.Fatal("first event of a creator is loaded")
	}
	e.Body.Index = 1
	if e.IsLoaded() {
		t.Fatal("event without payload is not loaded")
	}
}
