package chain

// Genesis defaults used when Params leave them unset.
const (
	DefaultGenesisTimestamp uint64 = 1640995200000 // 2022-01-01T00:00:00Z
	DefaultGenesisData             = "Genesis Block"
)

// Params configure a chain. Difficulty, SealingReward and the genesis
// fields are rules fixed at creation; Threads only affects sealing speed.
type Params struct {
	Difficulty       uint64 `json:"difficulty"`
	SealingReward    uint64 `json:"sealing_reward"`
	GenesisTimestamp uint64 `json:"genesis_timestamp"`
	GenesisData      string `json:"genesis_data"`
	Threads          int    `json:"-"`
}

func (p Params) withDefaults() Params {
	if p.GenesisTimestamp == 0 {
		p.GenesisTimestamp = DefaultGenesisTimestamp
	}
	if p.GenesisData == "" {
		p.GenesisData = DefaultGenesisData
	}
	return p
}

// SameRules reports whether p and o describe the same chain.
func (p Params) SameRules(o Params) bool {
	p, o = p.withDefaults(), o.withDefaults()
	return p.Difficulty == o.Difficulty &&
		p.SealingReward == o.SealingReward &&
		p.GenesisTimestamp == o.GenesisTimestamp &&
		p.GenesisData == o.GenesisData
}
