package guild

// Kind classifies the outcome of a guild operation.
type Kind int

const (
	KindOK Kind = iota
	KindValidation
	KindPermissionDenied
	KindNotFound
	KindConflict
	KindInsufficientFunds
	KindCapacityExceeded
	KindServiceUnavailable
	KindInternal
)

var kindNames = [...]string{
	"ok", "validation", "permission_denied", "not_found", "conflict",
	"insufficient_funds", "capacity_exceeded", "service_unavailable", "internal",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Result is the outcome of a business operation. Expected failures are
// Results; only store faults travel as errors.
type Result struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Args    map[string]any `json:"args,omitempty"`
}

func (r Result) OK() bool { return r.Kind == KindOK }

// With returns a copy of r with an extra message argument.
func (r Result) With(key string, value any) Result {
	args := make(map[string]any, len(r.Args)+1)
	for k, v := range r.Args {
		args[k] = v
	}
	args[key] = value
	r.Args = args
	return r
}

func success(msg string) Result { return Result{Kind: KindOK, Message: msg} }

func fail(kind Kind, msg string) Result { return Result{Kind: kind, Message: msg} }

// Message keys. Rendering them is left to the caller.
const (
	MsgCreated        = "guild.success.created"
	MsgRenamed        = "guild.success.renamed"
	MsgDisbanded      = "guild.success.disbanded"
	MsgInviteSent     = "guild.success.invite_sent"
	MsgJoined         = "guild.success.joined"
	MsgInviteDeclined = "guild.success.invite_declined"
	MsgLeft           = "guild.success.left"
	MsgKicked         = "guild.success.kicked"
	MsgPromoted       = "guild.success.promoted"
	MsgDemoted        = "guild.success.demoted"
	MsgDeposited      = "bank.success.deposited"
	MsgWithdrawn      = "bank.success.withdrawn"
	MsgBankUpdated    = "bank.success.updated"
	MsgUpgradeBought  = "upgrade.success.purchased"
	MsgPerkPurchased  = "guild.success.perk_purchased"
	MsgPerkUpgraded   = "guild.success.perk_upgraded"
	MsgPerkToggled    = "guild.success.perk_toggled"

	ErrMsgNameEmpty         = "guild.error.name_empty"
	ErrMsgNameWhitespace    = "guild.error.name_whitespace"
	ErrMsgNameInvalidChars  = "guild.error.name_invalid_chars"
	ErrMsgNameTooShort      = "guild.error.name_too_short"
	ErrMsgNameTooLong       = "guild.error.name_too_long"
	ErrMsgTagEmpty          = "guild.error.tag_empty"
	ErrMsgTagInvalidChars   = "guild.error.tag_invalid_chars"
	ErrMsgTagTooLong        = "guild.error.tag_too_long"
	ErrMsgAlreadyInGuild    = "guild.error.already_in_guild"
	ErrMsgNotInGuild        = "guild.error.not_in_guild"
	ErrMsgNameTaken         = "guild.error.name_taken"
	ErrMsgNotEnoughCurrency = "guild.error.not_enough_currency"
	ErrMsgNotLeader         = "guild.error.not_leader"
	ErrMsgGuildNotFound     = "guild.error.guild_not_exists"
	ErrMsgServiceDown       = "guild.error.service_unavailable"
	ErrMsgNoPermInvite      = "guild.error.no_permission_invite"
	ErrMsgNoPermKick        = "guild.error.no_permission_kick"
	ErrMsgNoPermPromote     = "guild.error.no_permission_promote"
	ErrMsgNoPermDemote      = "guild.error.no_permission_demote"
	ErrMsgNoPermWithdraw    = "guild.error.no_permission_withdraw"
	ErrMsgNoPermUpgrade     = "guild.error.no_permission_upgrade"
	ErrMsgNoPermPerks       = "guild.error.no_permission_perks"
	ErrMsgTargetInGuild     = "guild.error.target_in_guild"
	ErrMsgTargetHasInvite   = "guild.error.target_has_invite"
	ErrMsgGuildFull         = "guild.error.guild_full"
	ErrMsgTargetGuildFull   = "guild.error.target_guild_full"
	ErrMsgNoPendingInvite   = "guild.error.no_pending_invite"
	ErrMsgNoDefaultRank     = "guild.error.no_default_rank"
	ErrMsgLeaderCannotLeave = "guild.error.leader_cannot_leave"
	ErrMsgTargetNotInGuild  = "guild.error.target_not_in_guild"
	ErrMsgCannotKickLeader  = "guild.error.cannot_kick_leader"
	ErrMsgTargetHigherRank  = "guild.error.target_higher_rank"
	ErrMsgInvalidRank       = "guild.error.invalid_rank"
	ErrMsgNoHigherRank      = "guild.error.no_higher_rank"
	ErrMsgNoLowerRank       = "guild.error.no_lower_rank"
	ErrMsgCannotTargetSelf  = "guild.error.cannot_target_self"

	ErrMsgInvalidAmount       = "bank.error.invalid_amount"
	ErrMsgInsufficientBalance = "bank.error.insufficient_balance"
	ErrMsgInsufficientBank    = "bank.error.insufficient_bank"
	ErrMsgExceedCapacity      = "bank.error.exceed_capacity"
	ErrMsgEconomyUnavailable  = "economy.error.unavailable"

	ErrMsgUpgradeUnknown      = "upgrade.error.unknown"
	ErrMsgUpgradeDisabled     = "upgrade.error.disabled"
	ErrMsgUpgradeMaxLevel     = "upgrade.error.max_level"
	ErrMsgUpgradeInsufficient = "upgrade.error.insufficient_funds"

	ErrMsgPerkNotFound         = "guild.error.perk_not_found"
	ErrMsgPerkAlreadyPurchased = "guild.error.perk_already_purchased"
	ErrMsgPerkMaxLevel         = "guild.error.perk_max_level"
	ErrMsgPerkNotTogglable     = "guild.error.perk_not_togglable"
	ErrMsgPerkNotOwned         = "guild.error.perk_not_owned"
)
