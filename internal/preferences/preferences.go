// Package preferences stores the user's defaults for new invoices.
package preferences

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"zugferd/internal/logger"
	"zugferd/internal/platform"
	"zugferd/internal/store"
	"zugferd/pkg/models"
)

// FileName is the preferences document below the data directory.
const FileName = "preferences.json"

// Profiles understood by the e-invoice toolkit, from the smallest to the
// richest data set.
var Profiles = []string{"MINIMUM", "BASICWL", "BASIC", "EN16931", "EXTENDED", "XRECHNUNG"}

// DefaultProfile is used when nothing else is configured.
const DefaultProfile = "EN16931"

// ErrUnknownKey is returned by Set for an unsupported preference name.
var ErrUnknownKey = errors.New("unknown preference")

// Preferences are the user's defaults.
type Preferences struct {
	DefaultSenderKey int    `json:"defaultSenderKey" validate:"gte=0"`
	Currency         string `json:"currency" validate:"len=3,uppercase"`
	PaymentMethod    int    `json:"paymentMethod" validate:"gt=0"`
	Profile          string `json:"profile" validate:"oneof=MINIMUM BASICWL BASIC EN16931 EXTENDED XRECHNUNG"`
	LastDirectory    string `json:"lastDirectory"`
}

// Defaults returns the preferences of a fresh installation.
func Defaults() Preferences {
	return Preferences{
		Currency:      models.DefaultCurrency,
		PaymentMethod: models.DefaultPaymentMethod,
		Profile:       DefaultProfile,
	}
}

var validate = validator.New()

// Store loads and saves Preferences.
type Store struct {
	file *store.JSONFile
	log  zerolog.Logger

	mu      sync.RWMutex
	current Preferences
}

// Open loads the preferences. A missing or unreadable document yields the
// defaults.
func Open(dirs platform.Dirs) *Store {
	s := &Store{
		file:    store.NewJSONFile(filepath.Join(dirs.DataDir(), FileName), dirs.QuarantineDir(), store.Object),
		log:     logger.WithComponent("preferences"),
		current: Defaults(),
	}

	// Absent fields keep their default because decoding starts from it.
	loaded := Defaults()
	err := s.file.Read(&loaded)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return s
	case err != nil:
		return s
	}
	if err := validate.Struct(loaded); err != nil {
		_ = s.file.Quarantine(fmt.Errorf("invalid preferences: %w", err))
		return s
	}
	s.current = loaded
	return s
}

// Get returns the current preferences.
func (s *Store) Get() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Replace validates p and makes it current. Nothing is written until Save.
func (s *Store) Replace(p Preferences) error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("preferences: %w", err)
	}
	s.mu.Lock()
	s.current = p
	s.mu.Unlock()
	return nil
}

// Set changes a single preference given by its JSON name, parsing value as
// needed.
func (s *Store) Set(key, value string) error {
	p := s.Get()
	value = strings.TrimSpace(value)

	switch key {
	case "defaultSenderKey":
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
			return fmt.Errorf("preferences: %s must be a number: %w", key, err)
		}
		p.DefaultSenderKey = n
	case "currency":
		p.Currency = strings.ToUpper(value)
	case "paymentMethod":
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
			return fmt.Errorf("preferences: %s must be a number: %w", key, err)
		}
		if _, ok := models.FindPaymentMethod(n); !ok {
			return fmt.Errorf("preferences: unknown payment method %d", n)
		}
		p.PaymentMethod = n
	case "profile":
		p.Profile = strings.ToUpper(value)
	case "lastDirectory":
		p.LastDirectory = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return s.Replace(p)
}

// Save writes the current preferences.
func (s *Store) Save() error {
	p := s.Get()
	if err := s.file.Write(p); err != nil {
		s.log.Warn().Err(err).Msg("Could not save preferences, previous file kept")
		return err
	}
	s.log.Debug().Msg("Preferences saved")
	return nil
}
