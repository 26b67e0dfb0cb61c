package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	nanoid "github.com/jaevor/go-nanoid"
	"gorm.io/gorm"

	"noorulfityan_backend/internals/features/notifications/email"
	"noorulfityan_backend/internals/features/payment/donations/events"
	"noorulfityan_backend/internals/features/payment/donations/model"
	"noorulfityan_backend/internals/features/payment/donations/repository"
	"noorulfityan_backend/internals/features/payment/mpesa"
	userModel "noorulfityan_backend/internals/features/users/user/model"
)

// Gateway is the part of mpesa.Client the donation flow needs.
type Gateway interface {
	InitiatePush(ctx context.Context, r mpesa.PushRequest) (*mpesa.PushResponse, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (json.RawMessage, error)
}

type UserStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*userModel.UserModel, error)
	ListAdmins(ctx context.Context) ([]userModel.UserModel, error)
}

type Deps struct {
	Donations *repository.DonationRepository
	Callbacks *repository.CallbackEventRepository
	Gateway   Gateway
	Users     UserStore
	Mailer    email.Sender
	Events    events.Publisher
	Metrics   *Metrics

	OrgName string
	// ClaimLease bounds how long an initiation lease blocks other attempts.
	ClaimLease time.Duration
	Now        func() time.Time
}

type DonationService struct {
	donations *repository.DonationRepository
	callbacks *repository.CallbackEventRepository
	gateway   Gateway
	users     UserStore
	mailer    email.Sender
	events    events.Publisher
	metrics   *Metrics

	orgName    string
	claimLease time.Duration
	now        func() time.Time
	newToken   func() string
	loc        *time.Location
}

func New(d Deps) *DonationService {
	s := &DonationService{
		donations:  d.Donations,
		callbacks:  d.Callbacks,
		gateway:    d.Gateway,
		users:      d.Users,
		mailer:     d.Mailer,
		events:     d.Events,
		metrics:    d.Metrics,
		orgName:    d.OrgName,
		claimLease: d.ClaimLease,
		now:        d.Now,
	}
	if s.events == nil {
		s.events = events.NoopPublisher{}
	}
	if s.orgName == "" {
		s.orgName = "Noor Ul Fityan"
	}
	if s.claimLease <= 0 {
		s.claimLease = 35 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}

	gen, err := nanoid.Standard(21)
	if err != nil {
		panic(err)
	}
	s.newToken = gen

	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		loc = time.FixedZone("EAT", 3*60*60)
	}
	s.loc = loc
	return s
}

func (s *DonationService) nowUTC() time.Time { return s.now().UTC() }

// load maps a missing row to ErrNotFound.
func (s *DonationService) load(ctx context.Context, id uuid.UUID) (*model.Donation, error) {
	d, err := s.donations.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return d, err
}
