// Package chorus assembles a node from its configuration: peers, key, store,
// transport, application proxy and HTTP service.
package chorus

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"time"

	"github.com/mosaicnetworks/chorus/src/config"
	"github.com/mosaicnetworks/chorus/src/crypto/keys"
	hg "github.com/mosaicnetworks/chorus/src/hashgraph"
	"github.com/mosaicnetworks/chorus/src/net"
	"github.com/mosaicnetworks/chorus/src/node"
	"github.com/mosaicnetworks/chorus/src/peers"
	"github.com/mosaicnetworks/chorus/src/proxy/dummy"
	"github.com/mosaicnetworks/chorus/src/service"
	"github.com/sirupsen/logrus"
)

// Chorus is the engine. Peers and Transport may be set before Init, in which
// case they are not loaded from the configuration.
type Chorus struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Store     hg.Store
	Peers     *peers.PeerSet
	Service   *service.Service
	logger    *logrus.Entry
}

// NewChorus ...
func NewChorus(c *config.Config) *Chorus {
	engine := &Chorus{
		Config: c,
		logger: c.Logger(),
	}

	return engine
}

func (c *Chorus) validateConfig() error {
	if c.Config.Bootstrap && !c.Config.Store {
		c.logger.Debug("Bootstrap forces Store")
		c.Config.Store = true
	}

	if c.Config.HeartbeatTimeout <= 0 {
		return fmt.Errorf("heartbeat must be positive, got %s", c.Config.HeartbeatTimeout)
	}

	if c.Config.SlowHeartbeatTimeout < c.Config.HeartbeatTimeout {
		c.logger.WithFields(logrus.Fields{
			"heartbeat":      c.Config.HeartbeatTimeout,
			"slow-heartbeat": c.Config.SlowHeartbeatTimeout,
		}).Warn("slow-heartbeat is shorter than heartbeat, using heartbeat")
		c.Config.SlowHeartbeatTimeout = c.Config.HeartbeatTimeout
	}

	if c.Config.StatsInterval <= 0 {
		c.Config.StatsInterval = config.DefaultStatsInterval
	}

	return nil
}

func (c *Chorus) initPeers() error {
	if c.Peers != nil {
		return nil
	}

	peerStore := peers.NewJSONPeerSet(c.Config.DataDir)

	participants, err := peerStore.PeerSet()
	if err != nil {
		return fmt.Errorf("loading peers.json: %s", err)
	}

	c.Peers = participants

	return nil
}

func (c *Chorus) initKey() error {
	if c.Config.Key != nil {
		return nil
	}

	keyfile := keys.NewSimpleKeyfile(c.Config.Keyfile())

	privKey, err := keyfile.ReadKey()
	if err != nil {
		c.logger.WithError(err).Warn("Cannot read private key from file")

		privKey, err = Keygen(c.Config.Keyfile())
		if err != nil {
			c.logger.WithError(err).Error("Cannot generate a new private key")
			return err
		}

		c.logger.WithField("public_key", keys.PublicKeyHex(&privKey.PublicKey)).Info("Created a new key")
	}

	c.Config.Key = privKey

	return nil
}

func (c *Chorus) initStore() error {
	if !c.Config.Store {
		c.Store = hg.NewInmemStore(c.Peers, c.Config.CacheSize)

		c.logger.Debug("created new in-mem store")

		return nil
	}

	dbPath := c.Config.DatabaseDir

	//A fresh start does not replay an existing database, it sets it aside.
	if !c.Config.Bootstrap {
		if _, err := os.Stat(dbPath); err == nil {
			backup := fmt.Sprintf("%s~%d", dbPath, time.Now().Unix())
			if err := os.Rename(dbPath, backup); err != nil {
				return err
			}
			c.logger.WithField("path", backup).Warn("Moved existing database")
		}
	}

	c.logger.WithField("path", dbPath).Debug("Opening badger database")

	store, err := hg.NewBadgerStore(
		c.Peers,
		c.Config.CacheSize,
		dbPath,
		false,
		c.logger.WithField("prefix", "badger"))
	if err != nil {
		return err
	}

	c.Store = store

	return nil
}

func (c *Chorus) initTransport() error {
	if c.Transport != nil {
		return nil
	}

	transport, err := net.NewTCPTransport(
		c.Config.BindAddr,
		c.Config.AdvertiseAddr,
		c.Config.MaxPool,
		c.Config.TCPTimeout,
		c.logger.WithField("prefix", "net"),
	)
	if err != nil {
		return err
	}

	c.Transport = transport

	return nil
}

func (c *Chorus) initNode() error {
	key := c.Config.Key

	self, ok := c.Peers.ByPubKey(keys.PublicKeyHex(&key.PublicKey))
	if !ok {
		return fmt.Errorf("cannot find self pubkey in peers.json")
	}

	moniker := c.Config.Moniker
	if moniker == "" {
		moniker = self.Moniker
	}

	c.logger.WithFields(logrus.Fields{
		"participants": c.Peers.Len(),
		"id":           self.ID(),
		"moniker":      moniker,
	}).Debug("PARTICIPANTS")

	if c.Config.Proxy == nil {
		c.logger.Debug("No application proxy, using the dummy app")
		c.Config.Proxy = dummy.NewInmemDummyClient(c.logger.WithField("prefix", "dummy"))
	}

	c.Node = node.NewNode(
		c.Config,
		node.NewValidator(key, moniker),
		c.Peers,
		c.Store,
		c.Transport,
		c.Config.Proxy,
	)

	if err := c.Node.Init(); err != nil {
		return fmt.Errorf("failed to initialize node: %s", err)
	}

	return nil
}

func (c *Chorus) initService() error {
	if !c.Config.NoService {
		c.Service = service.NewService(c.Config.ServiceAddr, c.Node, c.logger.WithField("prefix", "service"))
	}
	return nil
}

// Init initialises the engine
func (c *Chorus) Init() error {
	if err := c.validateConfig(); err != nil {
		c.logger.WithError(err).Error("chorus.go:Init() validateConfig")
		return err
	}

	if err := c.initPeers(); err != nil {
		c.logger.WithError(err).Error("chorus.go:Init() initPeers")
		return err
	}

	if err := c.initKey(); err != nil {
		c.logger.WithError(err).Error("chorus.go:Init() initKey")
		return err
	}

	if err := c.initStore(); err != nil {
		c.logger.WithError(err).Error("chorus.go:Init() initStore")
		return err
	}

	if err := c.initTransport(); err != nil {
		c.logger.WithError(err).Error("chorus.go:Init() initTransport")
		c.closeStore()
		return err
	}

	if err := c.initNode(); err != nil {
		c.logger.WithError(err).Error("chorus.go:Init() initNode")
		c.Transport.Close()
		c.closeStore()
		return err
	}

	if err := c.initService(); err != nil {
		c.logger.WithError(err).Error("chorus.go:Init() initService")
		return err
	}

	return nil
}

// Run starts the HTTP service, if any, and runs the node until ctx is done or
// Shutdown is called.
func (c *Chorus) Run(ctx context.Context) error {
	if c.Service != nil {
		go c.Service.Serve()

		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), c.Config.TCPTimeout)
			defer cancel()
			if err := c.Service.Shutdown(sctx); err != nil {
				c.logger.WithError(err).Warn("Stopping HTTP service")
			}
		}()
	}

	err := c.Node.Run(ctx)

	//a cancelled context leaves the node running its shutdown sequence
	c.Node.Shutdown()

	return err
}

// Shutdown stops the node
func (c *Chorus) Shutdown() {
	if c.Node != nil {
		c.Node.Shutdown()
	}
}

func (c *Chorus) closeStore() {
	if c.Store == nil {
		return
	}
	if err := c.Store.Close(); err != nil {
		c.logger.WithError(err).Error("Closing store")
	}
}

// Keygen generates a new key and writes it to keyfile. It refuses to
// overwrite an existing file.
func Keygen(keyfile string) (*ecdsa.PrivateKey, error) {
	if _, err := os.Stat(keyfile); err == nil {
		return nil, fmt.Errorf("another key already lives in %s", keyfile)
	}

	privKey, err := keys.GenerateECDSAKey()
	if err != nil {
		return nil, err
	}

	if err := keys.NewSimpleKeyfile(keyfile).WriteKey(privKey); err != nil {
		return nil, err
	}

	return privKey, nil
}
