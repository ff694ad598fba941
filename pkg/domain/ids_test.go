package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "coldchain/pkg/domain-errors"
)

// TestParseIdentity_Invariants validates "custodian is always a valid,
// non-empty identity" at the trust boundary.
func TestParseIdentity_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseIdentity("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidIdentity))
	})

	t.Run("rejects zero address", func(t *testing.T) {
		_, err := ParseIdentity("0x" + strings.Repeat("0", 40))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidIdentity))
	})

	t.Run("normalizes checksum casing", func(t *testing.T) {
		id, err := ParseIdentity("0x52908400098527886E0F7030069857D2E4169EE7")
		require.NoError(t, err)
		assert.Equal(t, Identity("0x52908400098527886e0f7030069857d2e4169ee7"), id)
	})

	t.Run("trims surrounding whitespace", func(t *testing.T) {
		id, err := ParseIdentity("  0x8617e340b3d01fa5f11f306f4090fd50e238070d ")
		require.NoError(t, err)
		assert.Equal(t, "0x8617e340b3d01fa5f11f306f4090fd50e238070d", id.String())
	})
}

func TestParseIdentity_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing prefix", "8617e340b3d01fa5f11f306f4090fd50e238070d"},
		{"too short", "0x8617e340b3d01fa5"},
		{"too long", "0x8617e340b3d01fa5f11f306f4090fd50e238070d00"},
		{"non hex digit", "0x8617e340b3d01fa5f11f306f4090fd50e238070z"},
		{"SQL injection attempt", "'; DROP TABLE shipments;--"},
		{"Null byte injection", "0x8617e340b3d01fa5f11f306f4090fd50e2380\x00d"},
		{"Whitespace only", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseIdentity(tt.input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidIdentity))
		})
	}
}

func TestParseShipmentID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Empty string", "", true},
		{"Whitespace only", "   ", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Null byte injection", "SHIP\x00001", true},
		{"Invalid UTF-8", string([]byte{0xff, 0xfe}), true},

		{"Plain id", "SHIP001", false},
		{"Id with spaces kept opaque", "Batch 7 / Lot A", false},
		{"Unicode id", "Sendung-Ä1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseShipmentID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, id.String())
		})
	}
}
