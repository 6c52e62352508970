package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"oipulse/internal/logger"
)

// Action 是信号指向的交易动作。
type Action string

const (
	ActionCEBuy Action = "CE_BUY"
	ActionPEBuy Action = "PE_BUY"
)

// Signal 是最终放行的交易信号，生成后不再修改。
type Signal struct {
	ID          string          `json:"id"`
	TradingDate string          `json:"trading_date"`
	Instrument  string          `json:"instrument"`
	Action      Action          `json:"action"`
	Strike      float64         `json:"strike"`
	Expiry      string          `json:"expiry"`
	LotSize     int             `json:"lot_size"`
	Scenario    MatchedScenario `json:"scenario"`
	Risk        RiskProfile     `json:"risk"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TradeContext 是生成信号所需的合约上下文。
type TradeContext struct {
	TradingDate string
	Instrument  string
	Strike      float64
	Expiry      string
	LotSize     int
}

// Ledger 持久化已放行的信号。
type Ledger interface {
	AppendSignal(ctx context.Context, sig Signal) error
}

// TextSender 把文本推送给外部通道。
type TextSender interface {
	SendText(text string) error
}

// Emitter 把命中场景转成交易信号:先记账，再落库，最后推送。
// 推送失败只告警，落库失败向上返回但不回滚已记的账。
type Emitter struct {
	governor *Governor
	ledger   Ledger
	sender   TextSender
	render   func(Signal) string
	newID    func() string
	now      func() time.Time
}

// EmitterOption 调整 Emitter 的可注入部件，主要用于测试。
type EmitterOption func(*Emitter)

func WithEmitterClock(now func() time.Time) EmitterOption {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

func WithEmitterIDSource(newID func() string) EmitterOption {
	return func(e *Emitter) {
		if newID != nil {
			e.newID = newID
		}
	}
}

func NewEmitter(governor *Governor, ledger Ledger, sender TextSender, render func(Signal) string, opts ...EmitterOption) *Emitter {
	e := &Emitter{
		governor: governor,
		ledger:   ledger,
		sender:   sender,
		render:   render,
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit 对命中场景走完放行流程。返回的 bool 表示本次是否真的发出了信号。
func (e *Emitter) Emit(ctx context.Context, state *DayState, m MatchedScenario, rp RiskProfile, tc TradeContext) (Signal, bool, error) {
	now := e.now()
	verdict := e.governor.Admit(state, m, now)
	if !verdict.Allowed {
		logger.Infof("信号被拦截 %s %s: %s", tc.Instrument, m.ScenarioID, verdict.Reason)
		return Signal{}, false, nil
	}

	sig := Signal{
		ID:          e.newID(),
		TradingDate: tc.TradingDate,
		Instrument:  tc.Instrument,
		Action:      actionForBias(m.Bias),
		Strike:      tc.Strike,
		Expiry:      tc.Expiry,
		LotSize:     tc.LotSize,
		Scenario:    m,
		Risk:        rp,
		CreatedAt:   now,
	}

	e.governor.Note(state, m, now)

	var ledgerErr error
	if e.ledger != nil {
		if err := e.ledger.AppendSignal(ctx, sig); err != nil {
			ledgerErr = fmt.Errorf("信号落库失败 %s: %w", sig.ID, err)
			logger.Errorf("%v", ledgerErr)
		}
	}

	if e.sender != nil && e.render != nil {
		if err := e.sender.SendText(e.render(sig)); err != nil {
			logger.Warnf("信号通知发送失败 %s: %v", sig.ID, err)
		}
	}

	return sig, true, ledgerErr
}

func actionForBias(b Bias) Action {
	if b == BiasBearish {
		return ActionPEBuy
	}
	return ActionCEBuy
}
