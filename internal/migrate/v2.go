package migrate

import (
	"github.com/oklog/ulid/v2"

	"github.com/yndnr/savevault/internal/core/domain"
	"github.com/yndnr/savevault/internal/integrity"
)

// v2ToV3 adds an id derived from the envelope timestamp and records the
// implied digest algorithm explicitly. The id uses zero entropy, so the
// same document always migrates to the same id.
func v2ToV3() Step {
	return Step{
		From:     2,
		Envelope: upgradeV2Envelope,
	}
}

func upgradeV2Envelope(doc *Document) error {
	if !doc.Has(FieldID) {
		ts, err := doc.Int(FieldTimestamp)
		if err != nil {
			return err
		}
		if ts < 0 {
			ts = 0
		}
		id, err := ulid.New(uint64(ts), nil)
		if err != nil {
			return domain.ErrParseFailure.Wrapf(err, "timestamp %d", ts)
		}
		if err := doc.Set(FieldID, id.String()); err != nil {
			return err
		}
	}
	if !doc.Has(FieldDigestAlg) {
		if err := doc.Set(FieldDigestAlg, string(integrity.Murmur3)); err != nil {
			return err
		}
	}
	return nil
}
