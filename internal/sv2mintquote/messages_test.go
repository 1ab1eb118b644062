package sv2mintquote

import "testing"

func TestMintQuoteRequestRoundTripWithDescription(t *testing.T) {
	desc := "share reward"
	m := MintQuoteRequest{
		Amount:      100,
		Unit:        "HASH",
		HeaderHash:  [32]byte{1, 2, 3},
		Description: &desc,
		LockingKey:  [33]byte{0x02, 0x03},
	}
	b, err := m.Encode()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeMintQuoteRequest(b)
	if err != nil {
		t.Fatal(err)
	}
	if got.Amount != m.Amount || got.Unit != m.Unit || got.HeaderHash != m.HeaderHash || got.LockingKey != m.LockingKey {
		t.Fatalf("mismatch: got %+v want %+v", got, m)
	}
	if got.Description == nil || *got.Description != desc {
		t.Fatalf("description mismatch: got %v want %v", got.Description, desc)
	}
}

func TestMintQuoteRequestRoundTripNoDescription(t *testing.T) {
	m := MintQuoteRequest{Amount: 1, Unit: "HASH", HeaderHash: [32]byte{9}, LockingKey: [33]byte{0x02}}
	b, err := m.Encode()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeMintQuoteRequest(b)
	if err != nil {
		t.Fatal(err)
	}
	if got.Description != nil {
		t.Fatalf("expected nil description, got %v", *got.Description)
	}
}

func TestMintQuoteResponseRoundTrip(t *testing.T) {
	m := MintQuoteResponse{QuoteID: "q-1", Status: StatusPaid, Expiry: 123456}
	b, err := m.Encode()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeMintQuoteResponse(b)
	if err != nil {
		t.Fatal(err)
	}
	if got != m {
		t.Fatalf("mismatch: got %+v want %+v", got, m)
	}
}

func TestMintQuoteErrorRoundTrip(t *testing.T) {
	m := MintQuoteError{ErrorCode: "insufficient-liquidity", ErrorMessage: "mint out of keysets"}
	b, err := m.Encode()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeMintQuoteError(b)
	if err != nil {
		t.Fatal(err)
	}
	if got != m {
		t.Fatalf("mismatch: got %+v want %+v", got, m)
	}
}
