// Package compliance evaluates committed matches against the regulatory
// reporting threshold and records threshold transaction reports.
package compliance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/carbonx/marketplace/internal/domain"
	"github.com/carbonx/marketplace/internal/store"
)

// ReportingThresholdCents is the fixed threshold transaction report limit:
// 10,000 currency units. Matches whose transaction value strictly exceeds
// it must be reported.
const ReportingThresholdCents int64 = 10_000 * 100

// Report is a threshold transaction report record.
type Report struct {
	ReportID      string    `json:"report_id"`
	MatchID       string    `json:"match_id"`
	AuctionID     string    `json:"auction_id"`
	BidID         string    `json:"bid_id"`
	BuyerID       string    `json:"buyer_id"`
	SellerID      string    `json:"seller_id"`
	MatchedVolume int64     `json:"matched_volume"`
	MatchedPrice  int64     `json:"matched_price"`  // cents
	Value         int64     `json:"value"`          // cents
	Currency      string    `json:"currency"`
	ReportedAt    time.Time `json:"reported_at"`
}

// Sink records reports with an external compliance system.
type Sink interface {
	Record(ctx context.Context, r Report) error
}

// Reporter evaluates committed matches against the threshold. Evaluation
// happens exactly once per match, strictly after the commit; a sink
// failure is logged and never reverses the match.
type Reporter struct {
	store  store.Store
	sink   Sink
	logger *slog.Logger
}

// NewReporter creates a Reporter.
func NewReporter(st store.Store, sink Sink, logger *slog.Logger) *Reporter {
	return &Reporter{
		store:  st,
		sink:   sink,
		logger: logger,
	}
}

// Evaluate checks one committed match against the reporting threshold and
// records a report when the transaction value exceeds it.
func (r *Reporter) Evaluate(ctx context.Context, m *domain.Match) {
	value := m.TransactionValue()
	if value <= ReportingThresholdCents {
		return
	}

	report := Report{
		ReportID:      uuid.New().String(),
		MatchID:       m.MatchID,
		AuctionID:     m.AuctionID,
		BidID:         m.BidID,
		MatchedVolume: m.MatchedVolume,
		MatchedPrice:  m.MatchedPrice,
		Value:         value,
		Currency:      "AUD",
		ReportedAt:    time.Now().UTC(),
	}

	// Resolve counterpart identities. A store failure here degrades the
	// report rather than dropping it.
	if auction, err := r.store.GetAuction(ctx, m.AuctionID); err == nil {
		report.BuyerID = auction.BuyerID
	} else {
		r.logger.Warn("threshold report missing buyer identity",
			slog.String("match_id", m.MatchID),
			slog.String("error", err.Error()))
	}
	if bid, err := r.store.GetBid(ctx, m.BidID); err == nil {
		report.SellerID = bid.SellerID
	} else {
		r.logger.Warn("threshold report missing seller identity",
			slog.String("match_id", m.MatchID),
			slog.String("error", err.Error()))
	}

	if err := r.sink.Record(ctx, report); err != nil {
		r.logger.Error("threshold report sink unavailable",
			slog.String("report_id", report.ReportID),
			slog.String("match_id", m.MatchID),
			slog.String("error", err.Error()))
		return
	}

	r.logger.Info("threshold transaction report recorded",
		slog.String("report_id", report.ReportID),
		slog.String("match_id", m.MatchID),
		slog.Int64("value", value),
	)
}

// LogSink records reports as structured log entries. This is the default
// sink when no external endpoint is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record logs the report.
func (s *LogSink) Record(_ context.Context, r Report) error {
	s.logger.Info("threshold_transaction_report",
		slog.String("report_id", r.ReportID),
		slog.String("match_id", r.MatchID),
		slog.String("auction_id", r.AuctionID),
		slog.String("buyer_id", r.BuyerID),
		slog.String("seller_id", r.SellerID),
		slog.Int64("matched_volume", r.MatchedVolume),
		slog.Int64("matched_price", r.MatchedPrice),
		slog.Int64("value", r.Value),
		slog.String("currency", r.Currency),
	)
	return nil
}

// HTTPSink records reports by POSTing them to an external compliance
// endpoint.
type HTTPSink struct {
	url    string
	client *http.Client
}

// NewHTTPSink creates an HTTPSink for the given endpoint.
func NewHTTPSink(url string, timeout time.Duration) *HTTPSink {
	return &HTTPSink{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Record delivers the report. Non-2xx responses are errors.
func (s *HTTPSink) Record(ctx context.Context, r Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("compliance sink returned status %d", resp.StatusCode)
	}
	return nil
}
