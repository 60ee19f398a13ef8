package swaphttp

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"irs-settlement/internal/swap/application"
	swap "irs-settlement/internal/swap/domain"
)

const timeLayout = time.RFC3339

// Rates are rendered as decimal percent strings with the agreement's
// rates decimals ("2.50").
type agreementView struct {
	ID                         string     `json:"id"`
	Status                     string     `json:"status"`
	FixedInterestPayer         string     `json:"fixed_interest_payer"`
	FloatingInterestPayer      string     `json:"floating_interest_payer"`
	AssetContract              string     `json:"asset_contract"`
	NotionalAmount             int64      `json:"notional_amount"`
	RatesDecimals              uint8      `json:"rates_decimals"`
	SwapRate                   string     `json:"swap_rate"`
	Spread                     string     `json:"spread"`
	Benchmark                  string     `json:"benchmark"`
	OracleContractForBenchmark string     `json:"oracle_contract_for_benchmark,omitempty"`
	ManualBenchmarkRate        string     `json:"manual_benchmark_rate,omitempty"`
	PaymentFrequency           int64      `json:"payment_frequency"`
	PaymentDates               []string   `json:"payment_dates"`
	StartingDate               string     `json:"starting_date"`
	MaturityDate               string     `json:"maturity_date"`
	DayCount                   string     `json:"day_count"`
	RemainingPeriods           int        `json:"remaining_periods"`
	TerminatedBy               string     `json:"terminated_by,omitempty"`
	TerminatedAt               *time.Time `json:"terminated_at,omitempty"`
	CreatedAt                  string     `json:"created_at"`
}

func newAgreementView(a *swap.Agreement) agreementView {
	decimals := a.RatesDecimals()
	view := agreementView{
		ID:                    a.ID(),
		Status:                string(a.Status()),
		FixedInterestPayer:    a.FixedInterestPayer().Hex(),
		FloatingInterestPayer: a.FloatingInterestPayer().Hex(),
		AssetContract:         a.AssetContract().Hex(),
		NotionalAmount:        a.NotionalAmount(),
		RatesDecimals:         decimals,
		SwapRate:              swap.FormatFixed(a.SwapRate(), decimals),
		Spread:                swap.FormatFixed(a.Spread(), decimals),
		Benchmark:             a.Benchmark(),
		PaymentFrequency:      a.PaymentFrequency(),
		StartingDate:          formatTime(a.StartingDate()),
		MaturityDate:          formatTime(a.MaturityDate()),
		DayCount:              string(a.DayCount()),
		RemainingPeriods:      a.RemainingPeriods(),
		CreatedAt:             formatTime(a.CreatedAt()),
	}
	if oracle := a.OracleContractForBenchmark(); oracle != (common.Address{}) {
		view.OracleContractForBenchmark = oracle.Hex()
	}
	if value, ok := a.BenchmarkSource().ManualValue(); ok {
		view.ManualBenchmarkRate = swap.FormatFixed(value, decimals)
	}
	for _, date := range a.PaymentDates() {
		view.PaymentDates = append(view.PaymentDates, formatTime(date))
	}
	if a.Status() == swap.StatusTerminated {
		view.TerminatedBy = a.TerminatedBy().Hex()
		at := a.TerminatedAt()
		view.TerminatedAt = &at
	}
	return view
}

type settlementView struct {
	PaymentDate     string `json:"payment_date"`
	PeriodStart     string `json:"period_start"`
	PeriodEnd       string `json:"period_end"`
	FixedRate       string `json:"fixed_rate"`
	Benchmark       string `json:"benchmark"`
	Spread          string `json:"spread"`
	FloatingRate    string `json:"floating_rate"`
	QuoteObservedAt string `json:"quote_observed_at"`
	QuoteSource     string `json:"quote_source"`
	FixedLeg        int64  `json:"fixed_leg"`
	FloatingLeg     int64  `json:"floating_leg"`
	Net             int64  `json:"net"`
	Amount          int64  `json:"amount"`
	Direction       string `json:"direction"`
	From            string `json:"from"`
	To              string `json:"to"`
	SettledBy       string `json:"settled_by"`
	SettledAt       string `json:"settled_at"`
}

func newSettlementView(s swap.PeriodSettlement, decimals uint8) settlementView {
	return settlementView{
		PaymentDate:     formatTime(s.PaymentDate),
		PeriodStart:     formatTime(s.PeriodStart),
		PeriodEnd:       formatTime(s.PeriodEnd),
		FixedRate:       swap.FormatFixed(s.FixedRate, decimals),
		Benchmark:       swap.FormatFixed(s.Benchmark, decimals),
		Spread:          swap.FormatFixed(s.Spread, decimals),
		FloatingRate:    swap.FormatFixed(s.FloatingRate, decimals),
		QuoteObservedAt: formatTime(s.QuoteObservedAt),
		QuoteSource:     s.QuoteSource,
		FixedLeg:        s.FixedLeg,
		FloatingLeg:     s.FloatingLeg,
		Net:             s.Net,
		Amount:          s.Amount,
		Direction:       s.Direction.String(),
		From:            s.From.Hex(),
		To:              s.To.Hex(),
		SettledBy:       s.SettledBy.Hex(),
		SettledAt:       formatTime(s.SettledAt),
	}
}

type positionView struct {
	Account          string `json:"account"`
	ObligationTokens int64  `json:"obligation_tokens"`
	AssetBalance     int64  `json:"asset_balance"`
}

type obligationsView struct {
	AgreementID      string       `json:"agreement_id"`
	Status           string       `json:"status"`
	RemainingPeriods int          `json:"remaining_periods"`
	Payer            positionView `json:"payer"`
	Receiver         positionView `json:"receiver"`
}

func newObligationsView(s application.ObligationStatus) obligationsView {
	position := func(p application.PartyPosition) positionView {
		return positionView{Account: p.Account.Hex(), ObligationTokens: p.ObligationTokens, AssetBalance: p.AssetBalance}
	}
	return obligationsView{
		AgreementID:      s.AgreementID,
		Status:           string(s.Status),
		RemainingPeriods: s.RemainingPeriods,
		Payer:            position(s.Payer),
		Receiver:         position(s.Receiver),
	}
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(timeLayout)
}
