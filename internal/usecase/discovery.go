package usecase

import (
	"context"
	"wa-blaster/internal/automation"
	"wa-blaster/internal/entity"
	"wa-blaster/pkg/logg"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	discoveryServiceName = "DiscoveryService"
	discoveryHolder      = "discovery"
)

// DiscoveryService lists what the signed-in account can message. Listing
// clicks through the sidebar, so it holds the gate like a batch does.
type DiscoveryService struct {
	sessions *SessionManager
	gate     *Gate
	logger   *zap.Logger
}

type DiscoveryServiceParams struct {
	fx.In

	Sessions *SessionManager
	Gate     *Gate
	Logger   *zap.Logger
}

func NewDiscoveryService(params DiscoveryServiceParams) *DiscoveryService {
	return &DiscoveryService{
		sessions: params.Sessions,
		gate:     params.Gate,
		logger:   params.Logger.With(zap.String(logg.Layer, discoveryServiceName)),
	}
}

// session takes the gate and returns the signed-in kit. release must be
// called once the page is no longer used.
func (s *DiscoveryService) session(ctx context.Context, op string) (*automation.Kit, func(), error) {
	release, err := s.gate.Acquire(op, discoveryHolder)
	if err != nil {
		return nil, nil, err
	}

	kit, err := s.sessions.RequireAuthenticated(ctx)
	if err != nil {
		release()
		return nil, nil, err
	}

	return kit, release, nil
}

func (s *DiscoveryService) Groups(ctx context.Context) ([]entity.Group, error) {
	kit, release, err := s.session(ctx, "Groups")
	if err != nil {
		return nil, err
	}
	defer release()

	groups, err := kit.Discovery.Groups(ctx)
	if err != nil {
		return nil, err
	}

	if groups == nil {
		groups = []entity.Group{}
	}

	return groups, nil
}

func (s *DiscoveryService) Labels(ctx context.Context) (entity.LabelsResult, error) {
	kit, release, err := s.session(ctx, "Labels")
	if err != nil {
		return entity.LabelsResult{}, err
	}
	defer release()

	return kit.Discovery.Labels(ctx)
}

// LabelRecipients flattens the chats of the named labels into recipients,
// keeping label order and dropping chats already listed.
func LabelRecipients(labels entity.LabelsResult, names ...string) []entity.Recipient {
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}

	seen := make(map[string]bool)
	var out []entity.Recipient

	for _, label := range labels.Labels {
		if len(names) > 0 && !wanted[label.Name] {
			continue
		}

		for _, chat := range label.Chats {
			r := entity.LabeledChatRecipient(chat.ID, chat.Name)
			if seen[r.Key()] {
				continue
			}

			seen[r.Key()] = true
			out = append(out, r)
		}
	}

	return out
}

func (s *DiscoveryService) Contacts(ctx context.Context) ([]entity.Contact, error) {
	kit, release, err := s.session(ctx, "Contacts")
	if err != nil {
		return nil, err
	}
	defer release()

	contacts, err := kit.Discovery.Contacts(ctx)
	if err != nil {
		return nil, err
	}

	if contacts == nil {
		contacts = []entity.Contact{}
	}

	s.logger.Info("Contacts exported", zap.Int("count", len(contacts)))

	return contacts, nil
}
