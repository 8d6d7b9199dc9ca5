package helpers

import (
	"errors"
	"math/big"
	"testing"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"one", "1", "1", false},
		{"hundred ether", "100000000000000000000", "100000000000000000000", false},
		{"zero parses", "0", "0", false},
		{"max uint256", MaxUint256.String(), MaxUint256.String(), false},
		{"overflow", new(big.Int).Add(MaxUint256, big.NewInt(1)).String(), "", true},
		{"empty", "", "", true},
		{"negative", "-5", "", true},
		{"plus sign", "+5", "", true},
		{"decimal point", "1.5", "", true},
		{"hex", "0x10", "", true},
		{"whitespace", " 10", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAmount(%q) expected error", tt.input)
				}
				if !errors.Is(err, ErrInvalidAmount) {
					t.Errorf("error %v should wrap ErrInvalidAmount", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) error = %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestHexToBytes32(t *testing.T) {
	valid := "0x" + "11223344556677889900aabbccddeeff11223344556677889900aabbccddeeff"
	b, err := HexToBytes32(valid)
	if err != nil {
		t.Fatalf("HexToBytes32() error = %v", err)
	}
	if b[0] != 0x11 || b[31] != 0xff {
		t.Errorf("unexpected decode: %x", b)
	}
	if BytesToHex(b[:]) != valid {
		t.Errorf("BytesToHex roundtrip = %s, want %s", BytesToHex(b[:]), valid)
	}

	if _, err := HexToBytes32("0x1234"); err == nil {
		t.Error("short input should fail")
	}
	if _, err := HexToBytes32("0xzz"); err == nil {
		t.Error("non-hex input should fail")
	}
}

func TestGenerateSecureRandom(t *testing.T) {
	a, err := GenerateSecureRandom(32)
	if err != nil {
		t.Fatalf("GenerateSecureRandom() error = %v", err)
	}
	b, _ := GenerateSecureRandom(32)
	if len(a) != 32 {
		t.Errorf("len = %d, want 32", len(a))
	}
	if ConstantTimeCompare(a, b) {
		t.Error("two random draws should differ")
	}
	if IsZeroBytes(a) {
		t.Error("random bytes should not be all zero")
	}
}

func TestSecureClear(t *testing.T) {
	b := []byte{1, 2, 3}
	SecureClear(b)
	if !IsZeroBytes(b) {
		t.Errorf("SecureClear left %v", b)
	}
}
