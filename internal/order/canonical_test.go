package order

import (
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

const (
	vectorMaker    = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	vectorSrcToken = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	vectorDstToken = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

	vectorEncoding = "00000000000000000000000070997970c51812dc3a010c7d01b50e0d17dc79c8" +
		"0000000000000000000000000000000000000000000000000000000000000001" +
		"0000000000000000000000000000000000000000000000000000000000000089" +
		"000000000000000000000000a0b86991c6218b36c1d19d4a2e9eb0ce3606eb48" +
		"0000000000000000000000002791bca1f2de4661ed88a30c99a7a9449aa84174" +
		"0000000000000000000000000000000000000000000000056bc75e2d63100000" +
		"0000000000000000000000000000000000000000000000055de6a779bbac0000" +
		"630dcd2966c4336691125448bbb25b4ff412a49c732db2c8abc1b8581bd710dd" +
		"0000000000000000000000000000000000000000000000000000000065540d20"
	vectorOrderHash  = "0x5048ca466d51e575dbfe462e7b3bf2bd62cb28cdb4e650da2f49d13168687e4f"
	vectorIntentHash = "0x596a94c1ac7e7499685fc8214439138b8aec687a41dc07aa67a972bdc08c71bd"
)

// vectorSecret is 0x00..0x1f.
func vectorSecret() Secret {
	var s Secret
	for i := range s {
		s[i] = byte(i)
	}
	return s
}

func vectorParams(t *testing.T) Params {
	t.Helper()
	p, err := RawParams{
		Maker:      vectorMaker,
		SrcChainID: 1,
		DstChainID: 137,
		SrcToken:   vectorSrcToken,
		DstToken:   vectorDstToken,
		SrcAmount:  "100000000000000000000",
		DstAmount:  "99000000000000000000",
		HashLock:   HashSecret(vectorSecret()),
		Timelock:   1700007200,
	}.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return p
}

func TestCanonicalizeFixedVector(t *testing.T) {
	p := vectorParams(t)

	encoded, err := Canonicalize(p)
	if err != nil {
		t.Fatalf("Canonicalize() error = %v", err)
	}
	if len(encoded) != CanonicalSize {
		t.Fatalf("encoding length = %d, want %d", len(encoded), CanonicalSize)
	}
	if got := hex.EncodeToString(encoded); got != vectorEncoding {
		t.Errorf("encoding mismatch\n got: %s\nwant: %s", got, vectorEncoding)
	}

	hash, err := ComputeHash(p)
	if err != nil {
		t.Fatalf("ComputeHash() error = %v", err)
	}
	if hash.Hex() != vectorOrderHash {
		t.Errorf("order hash = %s, want %s", hash.Hex(), vectorOrderHash)
	}

	intent, err := IntentHash(p)
	if err != nil {
		t.Fatalf("IntentHash() error = %v", err)
	}
	if intent.Hex() != vectorIntentHash {
		t.Errorf("intent hash = %s, want %s", intent.Hex(), vectorIntentHash)
	}
}

func TestComputeHashDeterministic(t *testing.T) {
	p := vectorParams(t)
	first, _ := ComputeHash(p)
	for i := 0; i < 10; i++ {
		again, err := ComputeHash(p)
		if err != nil {
			t.Fatalf("ComputeHash() error = %v", err)
		}
		if again != first {
			t.Fatalf("hash changed between calls: %s != %s", again.Hex(), first.Hex())
		}
	}
}

func TestComputeHashSingleFieldChange(t *testing.T) {
	base := vectorParams(t)
	baseHash, _ := ComputeHash(base)

	mutations := map[string]func(p *Params){
		"maker":      func(p *Params) { p.Maker = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC") },
		"srcChainId": func(p *Params) { p.SrcChainID = 10 },
		"dstChainId": func(p *Params) { p.DstChainID = 138 },
		"srcToken":   func(p *Params) { p.SrcToken = p.DstToken },
		"dstToken":   func(p *Params) { p.DstToken = p.SrcToken },
		"srcAmount":  func(p *Params) { p.SrcAmount = new(big.Int).Add(p.SrcAmount, big.NewInt(1)) },
		"dstAmount":  func(p *Params) { p.DstAmount = new(big.Int).Sub(p.DstAmount, big.NewInt(1)) },
		"hashLock":   func(p *Params) { p.HashLock[0] ^= 0x01 },
		"timelock":   func(p *Params) { p.Timelock++ },
	}

	seen := map[common.Hash]string{baseHash: "base"}
	for field, mutate := range mutations {
		t.Run(field, func(t *testing.T) {
			p := base
			p.SrcAmount = new(big.Int).Set(base.SrcAmount)
			p.DstAmount = new(big.Int).Set(base.DstAmount)
			mutate(&p)

			h, err := ComputeHash(p)
			if err != nil {
				t.Fatalf("ComputeHash() error = %v", err)
			}
			if prev, ok := seen[h]; ok {
				t.Errorf("changing %s collided with %s", field, prev)
			}
			seen[h] = field
		})
	}
}

func TestComputeHashAmountPaddingUnambiguous(t *testing.T) {
	// Moving value between the two amount words must not keep the same digest.
	a := vectorParams(t)
	b := vectorParams(t)
	a.SrcAmount, a.DstAmount = big.NewInt(1), big.NewInt(256)
	b.SrcAmount, b.DstAmount = big.NewInt(256), big.NewInt(1)

	ha, _ := ComputeHash(a)
	hb, _ := ComputeHash(b)
	if ha == hb {
		t.Error("swapped amounts produced the same hash")
	}
}

func TestCanonicalizeRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *RawParams)
		wantErr error
	}{
		{"bad checksum", func(r *RawParams) { r.Maker = "0x70997970c51812dc3a010c7d01b50e0d17dc79C8" }, ErrInvalidAddress},
		{"short address", func(r *RawParams) { r.SrcToken = "0x1234" }, ErrInvalidAddress},
		{"missing prefix", func(r *RawParams) { r.DstToken = vectorDstToken[2:] }, ErrInvalidAddress},
		{"zero token", func(r *RawParams) { r.SrcToken = "0x0000000000000000000000000000000000000000" }, ErrInvalidAddress},
		{"zero amount", func(r *RawParams) { r.SrcAmount = "0" }, ErrInvalidAmount},
		{"negative amount", func(r *RawParams) { r.DstAmount = "-1" }, ErrInvalidAmount},
		{"fractional amount", func(r *RawParams) { r.DstAmount = "1.5" }, ErrInvalidAmount},
		{"same chain", func(r *RawParams) { r.DstChainID = r.SrcChainID }, ErrInvalidChain},
		{"zero chain", func(r *RawParams) { r.SrcChainID = 0 }, ErrInvalidChain},
		{"zero timelock", func(r *RawParams) { r.Timelock = 0 }, ErrInvalidTimelock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := RawParams{
				Maker:      vectorMaker,
				SrcChainID: 1,
				DstChainID: 137,
				SrcToken:   vectorSrcToken,
				DstToken:   vectorDstToken,
				SrcAmount:  "100",
				DstAmount:  "99",
				Timelock:   1700007200,
			}
			tt.mutate(&raw)

			_, err := raw.Parse()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Parse() error = %v, want %v", err, tt.wantErr)
			}
			if !IsValidationError(err) {
				t.Errorf("IsValidationError(%v) = false", err)
			}
		})
	}
}

func TestCanonicalizeTypedValidation(t *testing.T) {
	p := vectorParams(t)
	p.SrcAmount = big.NewInt(0)
	if _, err := Canonicalize(p); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Canonicalize() error = %v, want ErrInvalidAmount", err)
	}
}

func TestParseAddressCaseRules(t *testing.T) {
	for _, s := range []string{
		vectorMaker,
		"0x70997970c51812dc3a010c7d01b50e0d17dc79c8",
		"0x70997970C51812DC3A010C7D01B50E0D17DC79C8",
	} {
		if _, err := ParseAddress(s); err != nil {
			t.Errorf("ParseAddress(%s) error = %v", s, err)
		}
	}
}
