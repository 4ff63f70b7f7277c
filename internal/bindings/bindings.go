package bindings

import "fmt"

// Bindings is the identity quintuple every jig carries.
type Bindings struct {
	Origin   string
	Location string
	Nonce    uint64
	Owner    Lock // nil iff destroyed
	Satoshis uint64
}

// CheckInvariants enforces that origin==location iff nonce==1, and that a
// destroyed jig has owner==nil, satoshis==0, and a deletion location.
func (b *Bindings) CheckInvariants() error {
	if (b.Origin == b.Location) != (b.Nonce == 1) {
		return fmt.Errorf("bad binding: origin==location must hold iff nonce==1 (origin=%s location=%s nonce=%d)",
			b.Origin, b.Location, b.Nonce)
	}
	loc, err := ParseLocation(b.Location)
	if err != nil {
		return err
	}
	destroyed := loc.IsDelete && (loc.Kind == LocationDeployed || loc.Kind == LocationPartial || loc.Kind == LocationRecording)
	if destroyed {
		if b.Owner != nil {
			return fmt.Errorf("bad binding: destroyed jig must have a nil owner")
		}
		if b.Satoshis != 0 {
			return fmt.Errorf("bad binding: destroyed jig must have zero satoshis")
		}
	} else if b.Owner == nil {
		return fmt.Errorf("bad owner: owner is null outside destroyed context")
	}
	if err := ValidateSatoshis(int64(b.Satoshis)); err != nil {
		return err
	}
	return nil
}

// Destroyed reports whether the bindings represent a destroyed jig, per the
// location's deletion-slot suffix.
func (b *Bindings) Destroyed() bool {
	loc, err := ParseLocation(b.Location)
	if err != nil {
		return false
	}
	return loc.IsDelete
}
