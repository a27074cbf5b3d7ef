package indicators

// Config selects which indicators participate and their parameters.
type Config struct {
	EnableMA        bool
	EnableRSI       bool
	EnableMACD      bool
	EnableBollinger bool

	ShortMA    int
	LongMA     int
	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	BollPeriod int
	BollWidth  float64
}

// DefaultConfig returns the standard parameter set.
func DefaultConfig() Config {
	return Config{
		EnableMA:        true,
		EnableRSI:       true,
		EnableMACD:      true,
		EnableBollinger: true,
		ShortMA:         10,
		LongMA:          20,
		RSIPeriod:       14,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		BollPeriod:      20,
		BollWidth:       2,
	}
}

// Engine evaluates the configured indicators over a close series.
type Engine struct {
	cfg Config
}

// NewEngine builds an indicator engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate computes all indicator votes for one close series. A series
// shorter than MinHistory yields InsufficientData for every enabled
// indicator; disabled indicators always report VoteDisabled.
func (e *Engine) Evaluate(closes []float64) Snapshot {
	snap := Snapshot{
		MA:        VoteDisabled,
		RSI:       VoteDisabled,
		MACD:      VoteDisabled,
		Bollinger: VoteDisabled,
	}

	short := len(closes) < MinHistory

	if e.cfg.EnableMA {
		if short {
			snap.MA = VoteInsufficientData
		} else {
			snap.MA = MACross(closes, e.cfg.ShortMA, e.cfg.LongMA)
		}
	}
	if e.cfg.EnableRSI {
		if short {
			snap.RSI = VoteInsufficientData
		} else {
			snap.RSI = RSIVote(closes, e.cfg.RSIPeriod)
		}
	}
	if e.cfg.EnableMACD {
		if short {
			snap.MACD = VoteInsufficientData
		} else {
			snap.MACD = MACDVote(closes, e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal)
		}
	}
	if e.cfg.EnableBollinger {
		if short {
			snap.Bollinger = VoteInsufficientData
		} else {
			snap.Bollinger = BollingerVote(closes, e.cfg.BollPeriod, e.cfg.BollWidth)
		}
	}

	if !short {
		snap.ShortMA = SMA(closes, e.cfg.ShortMA)
		snap.LongMA = SMA(closes, e.cfg.LongMA)
		snap.RSIValue = RSI(closes, e.cfg.RSIPeriod)
	}
	return snap
}
