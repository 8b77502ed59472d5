// Package commands implements the apcheck connectivity probe: dial an
// address, run the handshake, send a couple of harmless commands, and
// report the outcome. It is not the playback/caching application
// spec.md's Non-goals exclude — just enough of a CLI shell to exercise
// the library end to end, in the shape of the teacher's cmd/ciphera.
package commands

import (
	"encoding/binary"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"apwire"
	"apwire/internal/domain"
)

var (
	addr           string
	username       string
	clientID       uint32
	clientRevision uint32
)

func Execute() error {
	root := &cobra.Command{
		Use:   "apcheck",
		Short: "Probe connectivity to an access-point style server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			viper.SetEnvPrefix("apcheck")
			viper.AutomaticEnv()
			return nil
		},
	}

	root.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:4070", "host:port to dial")
	root.PersistentFlags().StringVar(&username, "username", "", "account username")
	root.PersistentFlags().Uint32Var(&clientID, "client-id", 0x00010000, "client id, as a big-endian u32")
	root.PersistentFlags().Uint32Var(&clientRevision, "client-revision", 1, "client revision, as a big-endian u32")

	viper.BindPFlag("addr", root.PersistentFlags().Lookup("addr"))
	viper.BindPFlag("username", root.PersistentFlags().Lookup("username"))
	viper.BindPFlag("client-id", root.PersistentFlags().Lookup("client-id"))
	viper.BindPFlag("client-revision", root.PersistentFlags().Lookup("client-revision"))

	root.AddCommand(probeCmd())
	return root.Execute()
}

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Dial, handshake, and send CACHEHASH + PONG",
		RunE: func(cmd *cobra.Command, args []string) error {
			id := apwire.Identity{
				Username:       viper.GetString("username"),
				ClientID:       be32(viper.GetUint32("client-id")),
				ClientRevision: be32(viper.GetUint32("client-revision")),
			}

			client, err := apwire.Dial(viper.GetString("addr"), id)
			if err != nil {
				return reportErr(err)
			}
			defer client.Close()

			if err := client.SendCacheHash(); err != nil {
				return reportErr(err)
			}
			if err := client.SendPong(); err != nil {
				return reportErr(err)
			}

			fmt.Println("handshake ok, CACHEHASH and PONG sent")
			return nil
		},
	}
}

func be32(v uint32) [4]byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b
}

func reportErr(err error) error {
	if kind, ok := domain.KindOf(err); ok {
		fmt.Printf("failed: %s: %v\n", kind, err)
	} else {
		fmt.Printf("failed: %v\n", err)
	}
	return err
}
