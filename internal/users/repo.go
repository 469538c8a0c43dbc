package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("user not found")

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

type UpsertUser struct {
	FirebaseUID string
	Email       string
	DisplayName string
	PhotoURL    string
}

// Profile is the billing-facing view of a user.
type Profile struct {
	FirebaseUID        string
	Email              string
	StripeCustomerID   string
	SubscriptionStatus string
}

func (r *Repo) EnsureUser(ctx context.Context, u UpsertUser) (string, error) {
	if u.FirebaseUID == "" {
		return "", fmt.Errorf("firebase_uid required")
	}

	const q = `
insert into users (firebase_uid, email, display_name, photo_url, updated_at)
values ($1, nullif($2,''), nullif($3,''), nullif($4,''), now())
on conflict (firebase_uid) do update
set
  email = coalesce(excluded.email, users.email),
  display_name = coalesce(excluded.display_name, users.display_name),
  photo_url = coalesce(excluded.photo_url, users.photo_url),
  updated_at = now()
returning id::text;
`
	var id string
	if err := r.db.QueryRow(ctx, q, u.FirebaseUID, u.Email, u.DisplayName, u.PhotoURL).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repo) Profile(ctx context.Context, firebaseUID string) (Profile, error) {
	const q = `
select firebase_uid, coalesce(email,''), coalesce(stripe_customer_id,''), coalesce(subscription_status,'none')
from users
where firebase_uid = $1;
`
	var p Profile
	err := r.db.QueryRow(ctx, q, firebaseUID).Scan(&p.FirebaseUID, &p.Email, &p.StripeCustomerID, &p.SubscriptionStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}

// SetStripeCustomer links a paying customer to the user after checkout.
func (r *Repo) SetStripeCustomer(ctx context.Context, firebaseUID, customerID, status string) error {
	const q = `
update users
set stripe_customer_id = $2, subscription_status = $3, updated_at = now()
where firebase_uid = $1;
`
	tag, err := r.db.Exec(ctx, q, firebaseUID, customerID, status)
	if err != nil {
		return fmt.Errorf("set stripe customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
