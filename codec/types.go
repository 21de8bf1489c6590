package codec

// VotingSystem identifies the contest's selection semantics, which
// determines how many states a selection slot encodes.
type VotingSystem int

const (
	// SystemPlurality allows each candidate to be selected (rank 0) or
	// not (-1): a two-state slot, base 2.
	SystemPlurality VotingSystem = iota
	// SystemBorda and SystemIRV allow a rank in [0, MaxVotes) or -1:
	// base = MaxVotes+1.
	SystemBorda
	SystemIRV
)

// CandidatePolicy describes one candidate's slot in the canonical
// ordering used by a contest.
type CandidatePolicy struct {
	CandidateID string
	// WriteIn marks this candidate as a free-text write-in slot; when
	// true the codec additionally emits WriteInSlotCount byte slots after
	// the selection slots of all candidates.
	WriteIn bool
}

// ContestPolicy configures how a single contest maps between a
// DecodedVoteContest and a RawBallot.
type ContestPolicy struct {
	ContestID  string
	System     VotingSystem
	MaxVotes   int // only meaningful for Borda/IRV
	Candidates []CandidatePolicy

	AllowExplicitInvalid bool
	MinSelections        int
	MaxSelections        int

	// WriteInBase is the radix used for write-in byte slots: 256 for raw
	// UTF-8 bytes, or 32 for the restricted base-32 alphabet. Zero
	// disables write-ins even if a candidate is marked WriteIn.
	WriteInBase int
	// WriteInSlotCount is the fixed number of slots (including the
	// terminator) reserved per write-in candidate.
	WriteInSlotCount int

	AlertPolicy AlertLevel
}

// selectionBase returns the radix of the selection slot (not counting any
// write-in slots) for this contest.
func (c ContestPolicy) selectionBase() uint64 {
	switch c.System {
	case SystemPlurality:
		return 2
	case SystemBorda, SystemIRV:
		return uint64(c.MaxVotes) + 1
	default:
		return 2
	}
}

// Choice is one candidate's recorded selection within a contest.
type Choice struct {
	CandidateID  string
	Selected     int64 // -1 = unselected, k>=0 = rank/position
	WriteInText  *string
}

// DecodedVoteContest is the structured vote intent for a single contest.
type DecodedVoteContest struct {
	ContestID        string
	IsExplicitInvalid bool
	Choices          []Choice
	Errors           []ValidityError
	Alerts           []Alert
}

// RawBallot is the mixed-radix encoding of a contest's intent, ready for
// EncodeMixedRadix/DecodeMixedRadix.
type RawBallot struct {
	Bases  []uint64
	Values []uint64
}
