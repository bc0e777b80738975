package harness

import (
	"context"

	"github.com/stretchr/testify/suite"

	"github.com/jacklaaa89/amqptest"
)

// Suite can be embedded into a testify suite to have a harness connected on suite start,
// registered queues purged before each test when CleanupOnSetup is set, and the harness
// closed on suite shutdown.
//
// Suites which define their own SetupSuite, SetupTest or TearDownSuite must call the
// embedded method.
type Suite struct {
	// Suite is the embedded suite type.
	suite.Suite

	// Config is used to connect the harness, amqptest.ConfigFromEnv when nil.
	Config *amqptest.Config
	// Options are passed to New.
	Options []Option

	harness *Harness
}

// SetupSuite connects the harness.
func (s *Suite) SetupSuite() {
	if s.Config == nil {
		cfg, err := amqptest.ConfigFromEnv()
		s.Require().NoError(err, "read config from environment")
		s.Config = &cfg
	}

	h, err := New(context.Background(), *s.Config, s.Options...)
	s.Require().NoError(err, "connect harness")
	s.harness = h
}

// SetupTest purges the registered queues when CleanupOnSetup is set.
func (s *Suite) SetupTest() {
	s.Require().NoError(s.harness.Setup(context.Background()), "purge registered queues")
}

// TearDownSuite closes the harness.
func (s *Suite) TearDownSuite() {
	if s.harness == nil {
		return
	}
	s.NoError(s.harness.Close(), "close harness")
}

// Harness returns the harness connected in SetupSuite.
func (s *Suite) Harness() *Harness {
	return s.harness
}

// Broker returns assertions reporting to the current test.
func (s *Suite) Broker() *Assertions {
	return s.harness.Assert(s.T())
}
