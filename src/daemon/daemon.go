package daemon

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"os"

	"github.com/ashwinbangalore/irohaBG/src/config"
	"github.com/ashwinbangalore/irohaBG/src/crypto/keys"
	"github.com/ashwinbangalore/irohaBG/src/ledger"
	"github.com/ashwinbangalore/irohaBG/src/net"
	"github.com/ashwinbangalore/irohaBG/src/node"
	"github.com/ashwinbangalore/irohaBG/src/peers"
	"github.com/ashwinbangalore/irohaBG/src/service"
	"github.com/sirupsen/logrus"
)

// Daemon assembles a node from a data directory: key, peers, genesis block,
// store, transport and HTTP service.
type Daemon struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Store     ledger.Store
	Peers     *peers.PeerSet
	Genesis   *ledger.Block
	Service   *service.Service

	logger *logrus.Entry
}

// NewDaemon ...
func NewDaemon(conf *config.Config) *Daemon {
	return &Daemon{
		Config: conf,
		logger: conf.Logger(),
	}
}

// Init reads the configuration files and creates the node. It fails if the
// key is missing, if the key is not one of the peers, or if the store holds a
// chain with a different genesis block.
func (d *Daemon) Init() error {
	if err := d.initKey(); err != nil {
		return err
	}

	if err := d.initPeers(); err != nil {
		return err
	}

	if err := d.initGenesis(); err != nil {
		return err
	}

	if err := d.initStore(); err != nil {
		return err
	}

	if err := d.initTransport(); err != nil {
		d.Store.Close()
		return err
	}

	if err := d.initNode(); err != nil {
		return err
	}

	d.initService()

	return nil
}

func (d *Daemon) initKey() error {
	if d.Config.Key != nil {
		return nil
	}

	key, err := keys.NewSimpleKeyfile(d.Config.Keyfile()).ReadKey()
	if err != nil {
		return fmt.Errorf("reading private key: %w", err)
	}

	d.Config.Key = key
	return nil
}

func (d *Daemon) initPeers() error {
	peerSet, err := peers.NewJSONPeerSet(d.Config.DataDir).PeerSet()
	if err != nil {
		return err
	}

	if peerSet.Len() == 0 {
		return fmt.Errorf("peers.json should define at least one peer")
	}

	if !peerSet.Contains(keys.FromPublicKey(&d.Config.Key.PublicKey)) {
		return fmt.Errorf("cannot find self pubkey in peers.json")
	}

	d.Peers = peerSet
	return nil
}

func (d *Daemon) initGenesis() error {
	genesis, err := ledger.ReadGenesis(d.Config.DataDir)
	if err != nil {
		return err
	}

	d.Genesis = genesis
	return nil
}

// initStore opens the store and makes sure it starts with the genesis block.
func (d *Daemon) initStore() error {
	if !d.Config.Store {
		d.Store = ledger.NewInmemStore()
		d.logger.Debug("created new in-mem store")
	} else {
		d.logger.WithField("path", d.Config.DatabaseDir).Debug("Attempting to load or create database")

		store, err := ledger.NewBadgerStore(d.Config.CacheSize, d.Config.DatabaseDir, d.logger)
		if err != nil {
			return err
		}
		d.Store = store
	}

	if d.Store.Height() == 0 {
		if err := d.Store.ApplyBlock(d.Genesis); err != nil {
			d.Store.Close()
			return fmt.Errorf("applying genesis block: %w", err)
		}
		return nil
	}

	first, err := d.Store.GetBlock(ledger.GenesisHeight)
	if err != nil {
		d.Store.Close()
		return err
	}
	if !bytes.Equal(first.Hash, d.Genesis.Hash) {
		d.Store.Close()
		return fmt.Errorf("database was created from genesis %s, not %s", first.Hex(), d.Genesis.Hex())
	}

	d.logger.WithField("height", d.Store.Height()).Debug("loaded existing database")

	return nil
}

func (d *Daemon) initTransport() error {
	trans, err := net.NewTCPTransport(
		d.Config.BindAddr,
		d.Config.AdvertiseAddr,
		d.Config.MaxPool,
		d.Config.TCPTimeout,
		d.Config.LoadDelay,
		d.logger,
	)
	if err != nil {
		return err
	}

	d.Transport = trans
	return nil
}

func (d *Daemon) initNode() error {
	self, _ := d.Peers.ByPubKeyBytes(keys.FromPublicKey(&d.Config.Key.PublicKey))

	moniker := d.Config.Moniker
	if moniker == "" {
		moniker = self.Moniker
	}

	d.logger.WithFields(logrus.Fields{
		"peers":   d.Peers.Len(),
		"id":      self.ID(),
		"moniker": moniker,
	}).Debug("PEERS")

	d.Node = node.NewNode(
		d.Config.NodeConfig(),
		node.NewValidator(d.Config.Key, moniker),
		d.Peers,
		d.Store,
		d.Transport,
	)

	return nil
}

func (d *Daemon) initService() {
	if d.Config.NoService {
		return
	}
	d.Service = service.NewService(d.Config.ServiceAddr, d.Node, d.Node.Metrics().Handler(), d.logger)
}

// Run starts the HTTP service and runs the node until it is shut down.
func (d *Daemon) Run() {
	if d.Service != nil {
		go d.Service.Serve()
	}

	d.Node.Run()
}

// Shutdown stops the node, which closes the transport and the store.
func (d *Daemon) Shutdown() {
	if d.Node != nil {
		d.Node.Shutdown()
	}
}

// Keygen writes a new key to keyfile, and its public key next to it. It
// refuses to overwrite an existing key.
func Keygen(keyfile string) (*ecdsa.PrivateKey, error) {
	if _, err := os.Stat(keyfile); err == nil {
		return nil, fmt.Errorf("another key already lives under %s", keyfile)
	}

	key, err := keys.GenerateECDSAKey()
	if err != nil {
		return nil, err
	}

	kf := keys.NewSimpleKeyfile(keyfile)

	if err := kf.WriteKey(key); err != nil {
		return nil, err
	}

	if err := kf.WritePublicKey(key); err != nil {
		return nil, err
	}

	return key, nil
}
