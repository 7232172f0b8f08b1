package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carbonx/marketplace/internal/domain"
)

var _ Store = (*PostgresStore)(nil)
var _ Store = (*MemoryStore)(nil)

// PostgresStore is a durable Store backed by Postgres via pgx. Conditional
// writes are expressed as UPDATE ... WHERE status = expected; the match
// commit and settlement operations run inside a transaction with row locks
// so preconditions are checked against current state at commit time.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database at dsn and verifies the
// connection with a ping.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnIdleTime = 2 * time.Minute
	cfg.ConnConfig.ConnectTimeout = 10 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS parties (
	id         text PRIMARY KEY,
	name       text NOT NULL,
	contact    text NOT NULL DEFAULT '',
	created_at timestamptz NOT NULL
);
CREATE TABLE IF NOT EXISTS auctions (
	id                 text PRIMARY KEY,
	buyer_id           text NOT NULL REFERENCES parties(id),
	volume             bigint NOT NULL,
	max_price          bigint NOT NULL,
	vintage_pref       int,
	status             text NOT NULL,
	registry_confirmed boolean NOT NULL DEFAULT false,
	created_at         timestamptz NOT NULL
);
CREATE TABLE IF NOT EXISTS bids (
	id           text PRIMARY KEY,
	auction_id   text NOT NULL DEFAULT '',
	seller_id    text NOT NULL REFERENCES parties(id),
	price        bigint NOT NULL,
	volume       bigint NOT NULL,
	serial_range text NOT NULL,
	vintage      int NOT NULL,
	status       text NOT NULL,
	created_at   timestamptz NOT NULL
);
CREATE TABLE IF NOT EXISTS matches (
	id             text PRIMARY KEY,
	bid_id         text NOT NULL REFERENCES bids(id),
	auction_id     text NOT NULL REFERENCES auctions(id),
	matched_volume bigint NOT NULL,
	matched_price  bigint NOT NULL,
	matched_at     timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_auctions_open ON auctions (max_price, created_at) WHERE status = 'open';
CREATE INDEX IF NOT EXISTS idx_bids_pending ON bids (price DESC, created_at) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_matches_auction ON matches (auction_id);
`

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return &domain.DependencyError{Op: "ensure_schema", Err: err}
	}
	return nil
}

// CreateParty inserts a party.
func (s *PostgresStore) CreateParty(ctx context.Context, p *domain.Party) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO parties (id, name, contact, created_at) VALUES ($1, $2, $3, $4)`,
		p.PartyID, p.Name, p.Contact, p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrPartyAlreadyExists
		}
		return &domain.DependencyError{Op: "create_party", Err: err}
	}
	return nil
}

// GetParty retrieves a party by ID.
func (s *PostgresStore) GetParty(ctx context.Context, id string) (*domain.Party, error) {
	p := &domain.Party{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, contact, created_at FROM parties WHERE id = $1`, id).
		Scan(&p.PartyID, &p.Name, &p.Contact, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPartyNotFound
	}
	if err != nil {
		return nil, &domain.DependencyError{Op: "get_party", Err: err}
	}
	return p, nil
}

// CreateAuction inserts an auction.
func (s *PostgresStore) CreateAuction(ctx context.Context, a *domain.Auction) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO auctions (id, buyer_id, volume, max_price, vintage_pref, status, registry_confirmed, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.AuctionID, a.BuyerID, a.Volume, a.MaxPrice, a.VintagePref, a.Status, a.RegistryConfirmed, a.CreatedAt)
	if err != nil {
		return &domain.DependencyError{Op: "create_auction", Err: err}
	}
	return nil
}

const auctionColumns = `id, buyer_id, volume, max_price, vintage_pref, status, registry_confirmed, created_at`

func scanAuction(row pgx.Row) (*domain.Auction, error) {
	a := &domain.Auction{}
	err := row.Scan(&a.AuctionID, &a.BuyerID, &a.Volume, &a.MaxPrice, &a.VintagePref,
		&a.Status, &a.RegistryConfirmed, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetAuction retrieves an auction by ID.
func (s *PostgresStore) GetAuction(ctx context.Context, id string) (*domain.Auction, error) {
	a, err := scanAuction(s.pool.QueryRow(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAuctionNotFound
	}
	if err != nil {
		return nil, &domain.DependencyError{Op: "get_auction", Err: err}
	}
	return a, nil
}

// GetOpenAuctions returns open auctions in selection order.
func (s *PostgresStore) GetOpenAuctions(ctx context.Context, vintage *int) ([]*domain.Auction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+auctionColumns+` FROM auctions
		 WHERE status = 'open' AND ($1::int IS NULL OR vintage_pref IS NULL OR vintage_pref = $1)
		 ORDER BY max_price ASC, created_at ASC, id ASC`, vintage)
	if err != nil {
		return nil, &domain.DependencyError{Op: "get_open_auctions", Err: err}
	}
	defer rows.Close()

	result := make([]*domain.Auction, 0)
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, &domain.DependencyError{Op: "get_open_auctions", Err: err}
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.DependencyError{Op: "get_open_auctions", Err: err}
	}
	return result, nil
}

// CreateBid inserts a bid.
func (s *PostgresStore) CreateBid(ctx context.Context, b *domain.Bid) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bids (id, auction_id, seller_id, price, volume, serial_range, vintage, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.BidID, b.AuctionID, b.SellerID, b.Price, b.Volume, b.SerialRange, b.Vintage, b.Status, b.CreatedAt)
	if err != nil {
		return &domain.DependencyError{Op: "create_bid", Err: err}
	}
	return nil
}

const bidColumns = `id, auction_id, seller_id, price, volume, serial_range, vintage, status, created_at`

func scanBid(row pgx.Row) (*domain.Bid, error) {
	b := &domain.Bid{}
	err := row.Scan(&b.BidID, &b.AuctionID, &b.SellerID, &b.Price, &b.Volume,
		&b.SerialRange, &b.Vintage, &b.Status, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetBid retrieves a bid by ID.
func (s *PostgresStore) GetBid(ctx context.Context, id string) (*domain.Bid, error) {
	b, err := scanBid(s.pool.QueryRow(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBidNotFound
	}
	if err != nil {
		return nil, &domain.DependencyError{Op: "get_bid", Err: err}
	}
	return b, nil
}

// GetPendingBids returns eligible pending bids in price/time priority order.
func (s *PostgresStore) GetPendingBids(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+bidColumns+` FROM bids
		 WHERE status = 'pending' AND (auction_id = '' OR auction_id = $1)
		 ORDER BY price DESC, created_at ASC, id ASC`, auctionID)
	if err != nil {
		return nil, &domain.DependencyError{Op: "get_pending_bids", Err: err}
	}
	defer rows.Close()

	result := make([]*domain.Bid, 0)
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, &domain.DependencyError{Op: "get_pending_bids", Err: err}
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.DependencyError{Op: "get_pending_bids", Err: err}
	}
	return result, nil
}

// UpdateAuctionStatus transitions an auction's status conditionally.
func (s *PostgresStore) UpdateAuctionStatus(ctx context.Context, id string, expected, next domain.AuctionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE auctions SET status = $3 WHERE id = $1 AND status = $2`,
		id, expected, next)
	if err != nil {
		return &domain.DependencyError{Op: "update_auction_status", Err: err}
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetAuction(ctx, id); err != nil {
			return err
		}
		return domain.ErrConflict
	}
	return nil
}

// SetAuctionConfirmed flips the registry-confirmed flag. Idempotent.
func (s *PostgresStore) SetAuctionConfirmed(ctx context.Context, id string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, &domain.DependencyError{Op: "set_auction_confirmed", Err: err}
	}
	defer tx.Rollback(ctx)

	var status domain.AuctionStatus
	var confirmed bool
	err = tx.QueryRow(ctx,
		`SELECT status, registry_confirmed FROM auctions WHERE id = $1 FOR UPDATE`, id).
		Scan(&status, &confirmed)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, domain.ErrAuctionNotFound
	}
	if err != nil {
		return false, &domain.DependencyError{Op: "set_auction_confirmed", Err: err}
	}
	if status == domain.AuctionStatusOpen {
		return false, &domain.InvalidStateError{Message: "auction not yet matched"}
	}
	if confirmed {
		return false, nil
	}
	if _, err := tx.Exec(ctx,
		`UPDATE auctions SET registry_confirmed = true WHERE id = $1`, id); err != nil {
		return false, &domain.DependencyError{Op: "set_auction_confirmed", Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, &domain.DependencyError{Op: "set_auction_confirmed", Err: err}
	}
	return true, nil
}

// SettleAuction transitions a matched, confirmed auction to settled. The
// row lock makes the precondition check and the transition atomic.
func (s *PostgresStore) SettleAuction(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &domain.DependencyError{Op: "settle_auction", Err: err}
	}
	defer tx.Rollback(ctx)

	var status domain.AuctionStatus
	var confirmed bool
	err = tx.QueryRow(ctx,
		`SELECT status, registry_confirmed FROM auctions WHERE id = $1 FOR UPDATE`, id).
		Scan(&status, &confirmed)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrAuctionNotFound
	}
	if err != nil {
		return &domain.DependencyError{Op: "settle_auction", Err: err}
	}
	if status != domain.AuctionStatusMatched {
		return &domain.InvalidStateError{Message: "must be matched before settlement"}
	}
	if !confirmed {
		return &domain.PreconditionFailedError{Message: "registry confirmation required before settlement"}
	}
	if _, err := tx.Exec(ctx,
		`UPDATE auctions SET status = 'settled' WHERE id = $1`, id); err != nil {
		return &domain.DependencyError{Op: "settle_auction", Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return &domain.DependencyError{Op: "settle_auction", Err: err}
	}
	return nil
}

// UpdateBidStatus transitions a bid's status conditionally.
func (s *PostgresStore) UpdateBidStatus(ctx context.Context, id string, expected, next domain.BidStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bids SET status = $3 WHERE id = $1 AND status = $2`,
		id, expected, next)
	if err != nil {
		return &domain.DependencyError{Op: "update_bid_status", Err: err}
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetBid(ctx, id); err != nil {
			return err
		}
		return domain.ErrConflict
	}
	return nil
}

// CommitMatch applies the match commit inside a transaction. Both records
// are row-locked, expectations re-verified against current state, and all
// writes either land together or roll back. The auction row lock
// serializes concurrent commits, so the allocated-volume sum read here
// cannot go stale before the insert.
func (s *PostgresStore) CommitMatch(ctx context.Context, m *domain.Match) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &domain.DependencyError{Op: "commit_match", Err: err}
	}
	defer tx.Rollback(ctx)

	var auctionStatus domain.AuctionStatus
	var auctionVolume int64
	err = tx.QueryRow(ctx,
		`SELECT status, volume FROM auctions WHERE id = $1 FOR UPDATE`, m.AuctionID).
		Scan(&auctionStatus, &auctionVolume)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrAuctionNotFound
	}
	if err != nil {
		return &domain.DependencyError{Op: "commit_match", Err: err}
	}

	var bidStatus domain.BidStatus
	var bidAuctionID string
	err = tx.QueryRow(ctx,
		`SELECT status, auction_id FROM bids WHERE id = $1 FOR UPDATE`, m.BidID).
		Scan(&bidStatus, &bidAuctionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrBidNotFound
	}
	if err != nil {
		return &domain.DependencyError{Op: "commit_match", Err: err}
	}

	if auctionStatus != domain.AuctionStatusOpen || bidStatus != domain.BidStatusPending {
		return domain.ErrConflict
	}
	if bidAuctionID != "" && bidAuctionID != m.AuctionID {
		return domain.ErrConflict
	}

	var allocated int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(matched_volume), 0) FROM matches WHERE auction_id = $1`, m.AuctionID).
		Scan(&allocated)
	if err != nil {
		return &domain.DependencyError{Op: "commit_match", Err: err}
	}
	if m.MatchedVolume <= 0 || allocated+m.MatchedVolume > auctionVolume {
		return domain.ErrConflict
	}

	if _, err := tx.Exec(ctx,
		`UPDATE bids SET status = 'matched', auction_id = $2 WHERE id = $1`,
		m.BidID, m.AuctionID); err != nil {
		return &domain.DependencyError{Op: "commit_match", Err: err}
	}
	if allocated+m.MatchedVolume == auctionVolume {
		if _, err := tx.Exec(ctx,
			`UPDATE auctions SET status = 'matched' WHERE id = $1`, m.AuctionID); err != nil {
			return &domain.DependencyError{Op: "commit_match", Err: err}
		}
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO matches (id, bid_id, auction_id, matched_volume, matched_price, matched_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.MatchID, m.BidID, m.AuctionID, m.MatchedVolume, m.MatchedPrice, m.MatchedAt); err != nil {
		return &domain.DependencyError{Op: "commit_match", Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return &domain.DependencyError{Op: "commit_match", Err: err}
	}
	return nil
}

// ListMatches returns an auction's match records in commit order.
func (s *PostgresStore) ListMatches(ctx context.Context, auctionID string) ([]*domain.Match, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, bid_id, auction_id, matched_volume, matched_price, matched_at
		 FROM matches WHERE auction_id = $1 ORDER BY matched_at ASC, id ASC`, auctionID)
	if err != nil {
		return nil, &domain.DependencyError{Op: "list_matches", Err: err}
	}
	defer rows.Close()

	result := make([]*domain.Match, 0)
	for rows.Next() {
		m := &domain.Match{}
		if err := rows.Scan(&m.MatchID, &m.BidID, &m.AuctionID,
			&m.MatchedVolume, &m.MatchedPrice, &m.MatchedAt); err != nil {
			return nil, &domain.DependencyError{Op: "list_matches", Err: err}
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.DependencyError{Op: "list_matches", Err: err}
	}
	return result, nil
}

// MatchedVolume returns the total allocated volume for an auction.
func (s *PostgresStore) MatchedVolume(ctx context.Context, auctionID string) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(matched_volume), 0) FROM matches WHERE auction_id = $1`, auctionID).
		Scan(&total)
	if err != nil {
		return 0, &domain.DependencyError{Op: "matched_volume", Err: err}
	}
	return total, nil
}
