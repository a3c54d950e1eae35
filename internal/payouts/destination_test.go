package payouts

import (
	"errors"
	"testing"

	"github.com/creatorhub/backend/internal/models"
)

func TestNormalizeDestination_IBAN(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"FR7630006000011234567890189", "FR7630006000011234567890189", true},
		{"fr76 3000 6000 0112 3456 7890 189", "FR7630006000011234567890189", true},
		{"DE89\t3704 0044 0532 0130 00", "DE89370400440532013000", true},
		{"NO9386011117947", "NO9386011117947", true}, // shortest in use: 15
		{"INVALID", "", false},
		{"", "", false},
		{"NO938601111794", "", false},                      // 14 chars
		{"FR763000600001123456789018912345678", "", false}, // 35 chars
		{"7630006000011234567890189FR", "", false},         // country code first
		{"FRXX30006000011234567890189", "", false},         // check digits
		{"FR76-3000-6000-0112-3456-7890-189", "", false},   // punctuation
	}
	for _, tt := range tests {
		got, err := NormalizeDestination(models.Destination{Type: models.DestinationIBAN, IBAN: tt.in})
		if tt.ok {
			if err != nil || got.IBAN != tt.want {
				t.Errorf("%q: got %q, %v; want %q", tt.in, got.IBAN, err, tt.want)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidDestination) {
			t.Errorf("%q: got %v, want ErrInvalidDestination", tt.in, err)
		}
	}
}

func TestNormalizeDestination_Crypto(t *testing.T) {
	tests := []struct {
		name    string
		in      models.Destination
		want    models.Destination
		wantErr bool
	}{
		{
			name: "eth address checksummed",
			in:   models.Destination{Type: models.DestinationCrypto, CryptoAddress: " 0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359 ", CryptoNetwork: "ETH"},
			want: models.Destination{Type: models.DestinationCrypto, CryptoAddress: "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", CryptoNetwork: models.NetworkETH},
		},
		{
			name: "usdt lower-case network",
			in:   models.Destination{Type: models.DestinationCrypto, CryptoAddress: "0xDBF03B407C01E7CD3CBEA99509D93F8DDDC8C6FB", CryptoNetwork: "usdt"},
			want: models.Destination{Type: models.DestinationCrypto, CryptoAddress: "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB", CryptoNetwork: models.NetworkUSDT},
		},
		{
			name: "non-hex address kept as given",
			in:   models.Destination{Type: models.DestinationCrypto, CryptoAddress: "TQ4ge2gW8ZkBqZ7Ri7rFq3zVu6w1aCqk7a", CryptoNetwork: "USDT"},
			want: models.Destination{Type: models.DestinationCrypto, CryptoAddress: "TQ4ge2gW8ZkBqZ7Ri7rFq3zVu6w1aCqk7a", CryptoNetwork: models.NetworkUSDT},
		},
		{
			name:    "empty address",
			in:      models.Destination{Type: models.DestinationCrypto, CryptoAddress: "  ", CryptoNetwork: "ETH"},
			wantErr: true,
		},
		{
			name:    "unsupported network",
			in:      models.Destination{Type: models.DestinationCrypto, CryptoAddress: "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", CryptoNetwork: "BTC"},
			wantErr: true,
		},
		{
			name:    "unknown type",
			in:      models.Destination{Type: "paypal"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDestination(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDestination) {
					t.Fatalf("got %v, want ErrInvalidDestination", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeDestination: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestChecksumAddress(t *testing.T) {
	for _, want := range []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	} {
		if got := ChecksumAddress(want); got != want {
			t.Errorf("ChecksumAddress(%s): got %s", want, got)
		}
	}
}

func TestClassifyRoundTrip(t *testing.T) {
	for _, tt := range []struct {
		err    error
		status int
	}{
		{ErrAmountTooLow, 400},
		{ErrInsufficientBalance, 400},
		{ErrKycRequired, 403},
		{ErrInvalidDestination, 400},
		{ErrConcurrencyConflict, 409},
		{ErrNotFound, 404},
	} {
		code, status := Classify(tt.err)
		if status != tt.status {
			t.Errorf("%v: status got %d, want %d", tt.err, status, tt.status)
		}
		if back := FromCode(code, "server said so"); !errors.Is(back, tt.err) {
			t.Errorf("%s: FromCode lost the kind: %v", code, back)
		}
	}
	if code, status := Classify(errors.New("boom")); code != CodeInternal || status != 500 {
		t.Errorf("unknown error: got %s/%d", code, status)
	}
	if FromCode("teapot", "") != nil {
		t.Error("unknown code should map to nil")
	}
}
