package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

//go:embed networks.yaml
var defaultNetworks []byte

// Network is a chain and the contract addresses deployed on it.
type Network struct {
	Name    string `yaml:"-"`
	ChainID uint64 `yaml:"chainId"`
	RPCURL  string `yaml:"rpcUrl"`
	ZkLogin string `yaml:"zkLogin"`
	Factory string `yaml:"factory"`
	Idp     string `yaml:"idp"`
}

// Addresses returns the verifier, factory and identity provider contracts.
func (n Network) Addresses() (verifier, factory, idp common.Address, err error) {
	for _, a := range []struct {
		name  string
		value string
		dst   *common.Address
	}{
		{"zkLogin", n.ZkLogin, &verifier},
		{"factory", n.Factory, &factory},
		{"idp", n.Idp, &idp},
	} {
		if !common.IsHexAddress(a.value) {
			return verifier, factory, idp, fmt.Errorf("network %s: invalid %s address %q", n.Name, a.name, a.value)
		}
		*a.dst = common.HexToAddress(a.value)
	}
	return verifier, factory, idp, nil
}

// LoadNetworks returns the embedded network table overlaid with the
// networks defined in path. Fields left empty in path keep their defaults.
func LoadNetworks(path string) (map[string]Network, error) {
	networks, err := parseNetworks(defaultNetworks)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded networks: %w", err)
	}
	if path == "" {
		return networks, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read networks file: %w", err)
	}
	overrides, err := parseNetworks(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse networks file %s: %w", path, err)
	}

	for name, o := range overrides {
		networks[name] = merge(networks[name], o)
	}
	return networks, nil
}

func parseNetworks(data []byte) (map[string]Network, error) {
	parsed := map[string]Network{}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	for name, n := range parsed {
		n.Name = name
		parsed[name] = n
	}
	return parsed, nil
}

func merge(dst, src Network) Network {
	dst.Name = src.Name
	if src.ChainID != 0 {
		dst.ChainID = src.ChainID
	}
	if src.RPCURL != "" {
		dst.RPCURL = src.RPCURL
	}
	if src.ZkLogin != "" {
		dst.ZkLogin = src.ZkLogin
	}
	if src.Factory != "" {
		dst.Factory = src.Factory
	}
	if src.Idp != "" {
		dst.Idp = src.Idp
	}
	return dst
}
