package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sclint/support-desk/internal/domain"
)

// TicketFilter captures list and stats parameters.
type TicketFilter struct {
	CreatedBy   *string
	HandledBy   *string
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByKey(ctx context.Context, key string) (*domain.Ticket, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// ListSweepable returns Pending and Open tickets that never breached,
	// oldest first.
	ListSweepable(ctx context.Context) ([]domain.Ticket, error)
	Count(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context, filter TicketFilter) (map[domain.TicketStatus]int, error)
	// ReserveKey records key in the permanent key registry. It reports false
	// when the key was issued before.
	ReserveKey(ctx context.Context, key string, at time.Time) (bool, error)
	// MarkBreached moves a Pending or Open ticket to Breached and stamps
	// breached_at. It reports false when the ticket had already left those
	// states or breached before.
	MarkBreached(ctx context.Context, id string, at time.Time) (bool, error)
	// UpdatePriority persists priority for a Pending or Open ticket that never breached.
	UpdatePriority(ctx context.Context, id string, priority domain.TicketPriority, at time.Time) (bool, error)
}

const defaultListLimit = 20

const ticketColumns = `id::text, key, title, description, attachment_url, status, priority,
               created_by::text, handled_by::text, forwarded_to::text, created_at, updated_at, resolved_at,
               breached_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (key, title, description, attachment_url, status, priority,
                             created_by, handled_by, forwarded_to, created_at, updated_at, resolved_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id::text`
	return r.pool.QueryRow(ctx, query,
		ticket.Key,
		ticket.Title,
		ticket.Description,
		ticket.AttachmentURL,
		ticket.Status,
		ticket.Priority,
		ticket.CreatedBy,
		ticket.HandledBy,
		ticket.ForwardedTo,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.ResolvedAt,
	).Scan(&ticket.ID)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, attachment_url=$3, status=$4, priority=$5,
            handled_by=$6, forwarded_to=$7, updated_at=$8, resolved_at=$9
        WHERE id=$10`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.AttachmentURL,
		ticket.Status,
		ticket.Priority,
		ticket.HandledBy,
		ticket.ForwardedTo,
		ticket.UpdatedAt,
		ticket.ResolvedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return scanTicket(r.pool.QueryRow(ctx, query, id))
}

func (r *ticketRepository) GetByKey(ctx context.Context, key string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE key=$1`
	return scanTicket(r.pool.QueryRow(ctx, query, key))
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	where, args := filterClauses(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, id LIMIT %d OFFSET %d`,
		ticketColumns, where, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListSweepable(ctx context.Context) ([]domain.Ticket, error) {
	where, args := filterClauses(TicketFilter{Statuses: []domain.TicketStatus{domain.TicketStatusPending, domain.TicketStatusOpen}})
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s AND breached_at IS NULL ORDER BY created_at ASC, id`, ticketColumns, where)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ticketRepository) CountByStatus(ctx context.Context, filter TicketFilter) (map[domain.TicketStatus]int, error) {
	where, args := filterClauses(filter)
	query := fmt.Sprintf(`SELECT status, COUNT(*) FROM tickets WHERE %s GROUP BY status`, where)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.TicketStatus]int)
	for rows.Next() {
		var status domain.TicketStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *ticketRepository) ReserveKey(ctx context.Context, key string, at time.Time) (bool, error) {
	const query = `INSERT INTO ticket_keys (key, issued_at) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`
	cmd, err := r.pool.Exec(ctx, query, key, at)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) MarkBreached(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `
        UPDATE tickets SET status=$1, updated_at=$2, breached_at=$2
        WHERE id=$3 AND status IN ($4, $5) AND breached_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query,
		domain.TicketStatusBreached, at, id,
		domain.TicketStatusPending, domain.TicketStatusOpen,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) UpdatePriority(ctx context.Context, id string, priority domain.TicketPriority, at time.Time) (bool, error) {
	const query = `
        UPDATE tickets SET priority=$1, updated_at=$2
        WHERE id=$3 AND status IN ($4, $5) AND breached_at IS NULL AND priority <> $1`
	cmd, err := r.pool.Exec(ctx, query,
		priority, at, id,
		domain.TicketStatusPending, domain.TicketStatusOpen,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func filterClauses(filter TicketFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if filter.HandledBy != nil {
		args = append(args, *filter.HandledBy)
		clauses = append(clauses, fmt.Sprintf("handled_by=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s OR LOWER(key) LIKE %s)",
			placeholder, placeholder, placeholder))
	}
	return strings.Join(clauses, " AND "), args
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Key,
		&ticket.Title,
		&ticket.Description,
		&ticket.AttachmentURL,
		&ticket.Status,
		&ticket.Priority,
		&ticket.CreatedBy,
		&ticket.HandledBy,
		&ticket.ForwardedTo,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
		&ticket.BreachedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
