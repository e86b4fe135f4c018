package dap

import (
	"fmt"
	"strings"

	"github.com/boljen/go-bitmap"
)

// Quirk bit positions within the Quirks bitmap (spec.md §4.1).
const (
	QuirkNoJTAGMultiTAP = iota
	QuirkBadSWDNoRespDataPhase
	QuirkBrokenSWDSequence
	QuirkNeedsExtraZLPRead
	QuirkNoSWDSequence

	quirkBits = 5
)

// Quirks is a bitmap of adaptor quirks assigned at bring-up by
// classifyQuirks. The BROKEN_SWD_SEQUENCE bit is not set by this package;
// swd.Session records when its correction fires (BrokenSequenceQuirkLatched).
type Quirks struct {
	bitmap.Bitmap
}

func newQuirks() Quirks {
	return Quirks{bitmap.New(quirkBits)}
}

// Has reports whether the given quirk bit is set.
func (q Quirks) Has(bit int) bool {
	if q.Bitmap == nil {
		return false
	}
	return q.Bitmap.Get(bit)
}

// Set latches the given quirk bit for the remainder of the session.
func (q Quirks) Set(bit int) {
	q.Bitmap.Set(bit, true)
}

// String renders the set quirks for logging.
func (q Quirks) String() string {
	names := map[int]string{
		QuirkNoJTAGMultiTAP:        "NO_JTAG_MULTI_TAP",
		QuirkBadSWDNoRespDataPhase: "BAD_SWD_NO_RESP_DATA_PHASE",
		QuirkBrokenSWDSequence:     "BROKEN_SWD_SEQUENCE",
		QuirkNeedsExtraZLPRead:     "NEEDS_EXTRA_ZLP_READ",
		QuirkNoSWDSequence:         "NO_SWD_SEQUENCE",
	}
	var set []string
	for bit, name := range names {
		if q.Has(bit) {
			set = append(set, name)
		}
	}
	if len(set) == 0 {
		return "none"
	}
	return strings.Join(set, "|")
}

// classifyQuirks assigns quirk bits from the product string and firmware
// version reported by DAP_Info, per the known-adaptor table in spec.md §4.1:
// ORBTrace <= v1.2.x gets NO_JTAG_MULTI_TAP, <= v1.3.1 also gets
// BAD_SWD_NO_RESP_DATA_PHASE, every ORBTrace gets NEEDS_EXTRA_ZLP_READ;
// any CMSIS-DAP firmware before 1.2.0 gets NO_SWD_SEQUENCE.
func classifyQuirks(info Info) Quirks {
	q := newQuirks()

	product := strings.ToLower(info.Product)
	firmware := info.Firmware
	if strings.Contains(product, "mcu-link") {
		firmware = decodeMCULinkVersion(firmware)
	}

	if strings.Contains(product, "orbtrace") {
		if versionAtMost(firmware, 1, 2, 999) {
			q.Set(QuirkNoJTAGMultiTAP)
		}
		if versionAtMost(firmware, 1, 3, 1) {
			q.Set(QuirkBadSWDNoRespDataPhase)
		}
		q.Set(QuirkNeedsExtraZLPRead)
	}

	if versionAtMost(firmware, 1, 1, 999) {
		q.Set(QuirkNoSWDSequence)
	}

	return q
}

// parseVersionParts parses a loose "[v]major.minor[.rev]" string into its
// three integer components. A leading 'v'/'V' is accepted per spec.md §4.1.
func parseVersionParts(v string) (maj, min, patch int, ok bool) {
	v = strings.TrimSpace(v)
	if len(v) > 0 && (v[0] == 'v' || v[0] == 'V') {
		v = v[1:]
	}
	parts := strings.SplitN(v, ".", 3)
	if len(parts) == 0 || parts[0] == "" {
		return 0, 0, 0, false
	}
	got := [3]int{}
	for i := 0; i < len(parts) && i < 3; i++ {
		n := 0
		for _, c := range parts[i] {
			if c < '0' || c > '9' {
				return 0, 0, 0, false
			}
			n = n*10 + int(c-'0')
		}
		got[i] = n
	}
	return got[0], got[1], got[2], true
}

// decodeMCULinkVersion re-decodes a CMSIS-DAP version string for MCU-Link
// firmware >= v1.10, where the minor field packs true minor/revision as
// tens-of-hundredths (e.g. "1.12" means minor=1, revision=2) instead of a
// plain decimal minor (spec.md §4.1 step 2). Versions below v1.10 or that
// don't parse are returned unchanged.
func decodeMCULinkVersion(v string) string {
	maj, min, _, ok := parseVersionParts(v)
	if !ok || !(maj > 1 || (maj == 1 && min >= 10)) {
		return v
	}
	return fmt.Sprintf("%d.%d.%d", maj, min/10, min%10)
}

// versionAtMost reports whether v's parsed "[v]major.minor[.rev]" prefix is
// <= (maj, min, patch). A version string that doesn't parse is treated as
// not matching (no quirk applied) rather than erroring, since DAP_Info
// firmware strings are free-form across vendors.
func versionAtMost(v string, maj, min, patch int) bool {
	gmaj, gmin, gpatch, ok := parseVersionParts(v)
	if !ok {
		return false
	}
	got := [3]int{gmaj, gmin, gpatch}
	want := [3]int{maj, min, patch}
	for i := 0; i < 3; i++ {
		if got[i] != want[i] {
			return got[i] < want[i]
		}
	}
	return true
}
