package tls

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"sync"

	"github.com/twnesss/maybetls/option"

	"github.com/sagernet/fswatch"
	E "github.com/sagernet/sing/common/exceptions"
	"github.com/sagernet/sing/common/logger"
)

func ParseTLSVersion(version string) (uint16, error) {
	switch version {
	case "1.0":
		return tls.VersionTLS10, nil
	case "1.1":
		return tls.VersionTLS11, nil
	case "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, E.New("unknown tls version: ", version)
	}
}

// ServerConfig holds server certificate material, reloading file-based
// certificates when they change on disk.
type ServerConfig struct {
	logger          logger.Logger
	config          *tls.Config
	access          sync.RWMutex
	certificate     []byte
	key             []byte
	certificatePath string
	keyPath         string
	keyPair         *tls.Certificate
	watcher         *fswatch.Watcher
}

func NewServerConfig(logger logger.Logger, options option.InboundTLSOptions) (*ServerConfig, error) {
	serverConfig := &ServerConfig{
		logger:          logger,
		certificatePath: options.CertificatePath,
		keyPath:         options.KeyPath,
	}
	config := &tls.Config{
		ServerName:     options.ServerName,
		GetCertificate: serverConfig.getCertificate,
	}
	if options.MinVersion != "" {
		minVersion, err := ParseTLSVersion(options.MinVersion)
		if err != nil {
			return nil, E.Cause(err, "parse min_version")
		}
		config.MinVersion = minVersion
	}
	if options.MaxVersion != "" {
		maxVersion, err := ParseTLSVersion(options.MaxVersion)
		if err != nil {
			return nil, E.Cause(err, "parse max_version")
		}
		config.MaxVersion = maxVersion
	}
	if options.Certificate != "" {
		serverConfig.certificate = []byte(options.Certificate)
	} else if options.CertificatePath != "" {
		content, err := os.ReadFile(options.CertificatePath)
		if err != nil {
			return nil, E.Cause(err, "read certificate")
		}
		serverConfig.certificate = content
	}
	if options.Key != "" {
		serverConfig.key = []byte(options.Key)
	} else if options.KeyPath != "" {
		content, err := os.ReadFile(options.KeyPath)
		if err != nil {
			return nil, E.Cause(err, "read key")
		}
		serverConfig.key = content
	}
	if serverConfig.certificate == nil {
		return nil, E.New("missing certificate")
	} else if serverConfig.key == nil {
		return nil, E.New("missing key")
	}
	keyPair, err := tls.X509KeyPair(serverConfig.certificate, serverConfig.key)
	if err != nil {
		return nil, E.Cause(err, "parse x509 key pair")
	}
	serverConfig.keyPair = &keyPair
	serverConfig.config = config
	return serverConfig, nil
}

func (c *ServerConfig) Config() *tls.Config {
	return c.config
}

// Start begins watching file-based certificate material for changes. It is a
// no-op for inline certificates.
func (c *ServerConfig) Start() error {
	if c.certificatePath == "" && c.keyPath == "" {
		return nil
	}
	var watchPath []string
	for _, path := range []string{c.certificatePath, c.keyPath} {
		if path == "" {
			continue
		}
		absPath, _ := filepath.Abs(path)
		watchPath = append(watchPath, absPath)
	}
	watcher, err := fswatch.NewWatcher(fswatch.Options{
		Path: watchPath,
		Callback: func(path string) {
			err := c.reloadKeyPair()
			if err != nil {
				c.logger.Error(E.Cause(err, "reload certificate from ", path))
			}
		},
	})
	if err != nil {
		return err
	}
	err = watcher.Start()
	if err != nil {
		return err
	}
	c.watcher = watcher
	return nil
}

func (c *ServerConfig) Close() error {
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}

func (c *ServerConfig) reloadKeyPair() error {
	certificate := c.certificate
	key := c.key
	if c.certificatePath != "" {
		content, err := os.ReadFile(c.certificatePath)
		if err != nil {
			return E.Cause(err, "reload certificate")
		}
		certificate = content
	}
	if c.keyPath != "" {
		content, err := os.ReadFile(c.keyPath)
		if err != nil {
			return E.Cause(err, "reload key")
		}
		key = content
	}
	keyPair, err := tls.X509KeyPair(certificate, key)
	if err != nil {
		return E.Cause(err, "parse x509 key pair")
	}
	c.access.Lock()
	c.certificate = certificate
	c.key = key
	c.keyPair = &keyPair
	c.access.Unlock()
	c.logger.Info("certificate reloaded")
	return nil
}

func (c *ServerConfig) getCertificate(_ *tls.ClientHelloInfo) (*tls.Certificate, error) {
	c.access.RLock()
	defer c.access.RUnlock()
	if c.keyPair == nil {
		return nil, E.New("missing certificate")
	}
	return c.keyPair, nil
}
