package commands

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/mosaicnetworks/swirl/src/crypto/keys"
	"github.com/spf13/cobra"
)

var force bool

// NewKeygenCmd produces a KeygenCmd which creates the key pairs of a simulated
// network
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create the key pairs of a simulated network",
		RunE:  keygen,
	}

	AddKeygenFlags(cmd)

	return cmd
}

//AddKeygenFlags adds flags to the keygen command
func AddKeygenFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&_config.Swirl.DataDir, "datadir", _config.Swirl.DataDir, "Directory where the keys will be written")
	cmd.Flags().IntVar(&_config.Swirl.Nodes, "nodes", _config.Swirl.Nodes, "Number of key pairs")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing keys")
}

// keygen writes one private key per node, and the matching public key next to
// it with a .pub extension. The run command picks them up from the same
// datadir.
func keygen(cmd *cobra.Command, args []string) error {
	conf := &_config.Swirl

	if conf.Nodes < 1 {
		return fmt.Errorf("--nodes should be at least 1, not %d", conf.Nodes)
	}

	for i := 0; i < conf.Nodes; i++ {
		privKeyFile := conf.NodeKeyfile(i)

		if _, err := os.Stat(privKeyFile); err == nil && !force {
			return fmt.Errorf("A key already lives under: %s", privKeyFile)
		}

		key, err := keys.GenerateECDSAKey()
		if err != nil {
			return fmt.Errorf("Error generating ECDSA key: %s", err)
		}

		if err := keys.NewSimpleKeyfile(privKeyFile).WriteKey(key); err != nil {
			return fmt.Errorf("Writing private key: %s", err)
		}

		pubKeyFile := privKeyFile + ".pub"
		pub := keys.PublicKeyHex(&key.PublicKey)

		if err := ioutil.WriteFile(pubKeyFile, []byte(pub), 0600); err != nil {
			return fmt.Errorf("Writing public key: %s", err)
		}

		fmt.Printf("Node %d: private key in %s, public key %s\n", i, privKeyFile, pub)
	}

	return nil
}
