package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EtchedChampion/drd-VmbPy/pkg/vmb"
)

func TestParseFeatureType(t *testing.T) {
	tests := map[string]struct {
		name   string
		expFT  vmb.FeatureType
		expErr bool
	}{
		"Lowercase names should parse": {
			name:  "float",
			expFT: vmb.FeatureTypeFloat,
		},
		"Parsing should be case insensitive": {
			name:  "Enum",
			expFT: vmb.FeatureTypeEnum,
		},
		"Command type should parse": {
			name:  "command",
			expFT: vmb.FeatureTypeCommand,
		},
		"Unknown names should fail": {
			name:   "matrix",
			expErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ft, err := parseFeatureType(tc.name)

			if tc.expErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expFT, ft)
		})
	}
}

func TestParsePersistType(t *testing.T) {
	tests := map[string]struct {
		name string
		exp  vmb.PersistType
	}{
		"All should map to the full selection":          {name: persistAll, exp: vmb.PersistAll},
		"Streamable should map to streamable features":  {name: persistStreamable, exp: vmb.PersistStreamable},
		"NoLUT should map to the lookup table exclusion": {name: persistNoLUT, exp: vmb.PersistNoLUT},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.exp, parsePersistType(tc.name))
		})
	}
}
