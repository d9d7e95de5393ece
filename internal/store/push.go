package store

import (
	"database/sql"

	"github.com/cmericli/claude-remote/internal/model"
)

// SavePushSubscription registers or refreshes a push delivery target,
// keyed by endpoint.
func (s *Store) SavePushSubscription(sub model.PushSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT OR REPLACE INTO push_subscriptions
		(endpoint, p256dh_key, auth_key, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sub.Endpoint, sub.P256dh, sub.Auth, sub.UserAgent, s.nowISO())
	return err
}

// PushSubscriptions returns all registered delivery targets.
func (s *Store) PushSubscriptions() ([]model.PushSubscription, error) {
	rows, err := s.db.Query(`SELECT endpoint, COALESCE(p256dh_key, ''),
		COALESCE(auth_key, ''), COALESCE(user_agent, ''), created_at
		FROM push_subscriptions`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.PushSubscription
	for rows.Next() {
		var sub model.PushSubscription
		var created sql.NullString
		if err := rows.Scan(&sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.UserAgent, &created); err != nil {
			return nil, err
		}
		sub.CreatedAt = parseISO(created)
		out = append(out, sub)
	}
	return out, rows.Err()
}

// DeletePushSubscription removes a stale delivery target.
func (s *Store) DeletePushSubscription(endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM push_subscriptions WHERE endpoint = ?", endpoint)
	return err
}
