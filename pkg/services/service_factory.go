package services

import (
	"fmt"
	"sync"

	"github.com/deploymenttheory/go-ataraid/internal/config"
)

// ServiceFactory provides a centralized way to create and manage array services
type ServiceFactory struct {
	cfg          *config.Config
	opener       DeviceOpener
	arrayService ArrayService
	mu           sync.RWMutex
	initialized  bool
}

// NewServiceFactory creates a new service factory instance. A nil config
// selects config.Default.
func NewServiceFactory(cfg *config.Config) *ServiceFactory {
	if cfg == nil {
		cfg = config.Default()
	}
	return &ServiceFactory{cfg: cfg}
}

// WithOpener replaces how member devices are opened. It must be called
// before the first service is handed out.
func (sf *ServiceFactory) WithOpener(open DeviceOpener) *ServiceFactory {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	sf.opener = open
	return sf
}

// Initialize initializes all services with their dependencies
func (sf *ServiceFactory) Initialize() error {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	if sf.initialized {
		return nil
	}
	if err := sf.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	sf.arrayService = NewArrayService(sf.cfg, sf.opener)
	sf.initialized = true
	return nil
}

// ArrayService returns the array service instance
func (sf *ServiceFactory) ArrayService() (ArrayService, error) {
	sf.mu.RLock()
	if !sf.initialized {
		sf.mu.RUnlock()
		if err := sf.Initialize(); err != nil {
			return nil, err
		}
		sf.mu.RLock()
	}
	defer sf.mu.RUnlock()

	return sf.arrayService, nil
}

// Shutdown gracefully shuts down all services
func (sf *ServiceFactory) Shutdown() error {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	if !sf.initialized {
		return nil
	}

	// closes every member device the array service opened
	if sf.arrayService != nil {
		if err := sf.arrayService.Close(); err != nil {
			return err
		}
	}

	sf.arrayService = nil
	sf.initialized = false
	return nil
}

// IsInitialized returns whether the factory has been initialized
func (sf *ServiceFactory) IsInitialized() bool {
	sf.mu.RLock()
	defer sf.mu.RUnlock()
	return sf.initialized
}

// Config returns the configuration the services are built with
func (sf *ServiceFactory) Config() *config.Config {
	return sf.cfg
}
