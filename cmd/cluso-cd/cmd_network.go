package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-cd/pkg/network"
)

func runNetwork(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	env, err := newRunEnv(cmd.Context(), cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	net, err := env.buildNetwork()
	if err != nil {
		return err
	}
	if err := net.ReinitializeConnectivities(); err != nil {
		return err
	}
	temp, err := cfg.TemperatureHandler()
	if err != nil {
		return err
	}
	net.SetTemperature(temp.Temperature([3]float64{}, 0))

	printNetwork(cmd.OutOrStdout(), net)
	if showConnectivity {
		printConnectivity(cmd.OutOrStdout(), net)
	}
	return nil
}

func printNetwork(w io.Writer, net *network.Network) {
	var types []string
	for _, t := range network.Types() {
		if n := len(net.GetAll(t)); n > 0 {
			types = append(types, fmt.Sprintf("%s %d", t, n))
		}
	}
	reactions := net.Reactions()
	fmt.Fprintf(w, "clusters      %d (%s)\n", net.Size(), strings.Join(types, ", "))
	fmt.Fprintf(w, "dof           %d\n", net.DOF())
	fmt.Fprintf(w, "reactions     production %d, annihilation %d, dissociation %d\n",
		reactions[network.Production], reactions[network.Annihilation], reactions[network.Dissociation])
	fmt.Fprintf(w, "largest rate  %.6g at %g K\n", net.LargestRate(), net.Temperature())
}

// printConnectivity writes one row per cluster, a 0/1 column per cluster in
// id order.
func printConnectivity(w io.Writer, net *network.Network) {
	all := net.All()
	var b strings.Builder
	for id := 1; id <= net.Size(); id++ {
		b.Reset()
		for _, v := range net.Connectivity(id) {
			b.WriteByte(byte('0' + v))
		}
		fmt.Fprintf(w, "%4d %-14s %s\n", id, all[id-1].Name(), b.String())
	}
}
