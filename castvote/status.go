package castvote

import "time"

// ChannelWindow is one channel's voting window and current status, as the
// ingest caller resolves it from the election's configuration: whether
// the channel is open for voting, and whether a configured grace period
// still allows a late cast. The core library takes this already-resolved
// policy rather than reaching into an external election-management
// database itself.
type ChannelWindow struct {
	Status            VotingStatus
	Enabled           bool // whether this channel is enabled for the election at all
	CloseDate         *time.Time
	GracePeriodPolicy GracePeriodPolicy
	GracePeriod       time.Duration
	AllowEarlyVoting  bool
}

// CheckStatus enforces the election-open/grace-period half of voter
// authorisation. authTime is when the voter authenticated; now is the
// time of the cast attempt.
func CheckStatus(w ChannelWindow, channel VotingChannel, now, authTime time.Time) error {
	if !w.Enabled {
		return newErr(KindVotingChannelNotEnabled, "voting channel is not enabled for this election")
	}

	if w.CloseDate == nil {
		if w.AllowEarlyVoting && w.Status == StatusOpen {
			return nil
		}
		if w.Status != StatusOpen {
			return newErr(KindCheckStatusFailed, "voting status is not open")
		}
		return nil
	}

	closeDate := *w.CloseDate
	applyGrace := w.GracePeriodPolicy == ApplyGracePeriod &&
		channel == ChannelOnline &&
		w.Status != StatusPaused

	if applyGrace {
		closeWithGrace := closeDate.Add(w.GracePeriod)
		if now.After(closeWithGrace) || authTime.After(closeDate) {
			return newErr(KindCheckStatusFailed, "cannot vote outside grace period")
		}
		if !now.After(closeDate) && w.Status != StatusOpen {
			return newErr(KindCheckStatusFailed, "voting status is not open before the closing date")
		}
		return nil
	}

	if now.After(closeDate) {
		return newErr(KindCheckStatusFailed, "election close date passed")
	}
	if w.Status != StatusOpen {
		return newErr(KindCheckStatusFailed, "voting status is not open")
	}
	return nil
}
