package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dtroode/zklogin-recovery/internal/config"
	"github.com/dtroode/zklogin-recovery/internal/service"
)

func printLogin(w io.Writer, req service.LoginRequest) {
	fmt.Fprintf(w, "Open this URL to sign in:\n\n  %s\n\n", req.URL)
	fmt.Fprintf(w, "session:   %s\n", req.SessionID)
	fmt.Fprintf(w, "ephemeral: %s\n", req.Ephemeral.Hex())
	fmt.Fprintf(w, "nonce:     %s\n", req.Nonce)
}

func printSnapshot(w io.Writer, network config.Network, snap service.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "network:\t%s (%d)\n", network.Name, network.ChainID)
	fmt.Fprintf(tw, "session:\t%s\n", snap.SessionID)
	fmt.Fprintf(tw, "state:\t%s\n", snap.State)
	if snap.Ephemeral != (common.Address{}) {
		fmt.Fprintf(tw, "ephemeral:\t%s\n", snap.Ephemeral.Hex())
	}
	if id := snap.Identity; id != nil {
		fmt.Fprintf(tw, "identity:\t%s %s\n", id.Iss, id.Sub)
		fmt.Fprintf(tw, "salt:\t%s\n", id.Salt.Hex())
		fmt.Fprintf(tw, "zk address:\t%s\n", id.ZkAddr.Hex())
	}
	if wl := snap.Wallet; wl != nil {
		fmt.Fprintf(tw, "wallet:\t%s\n", wl.Address.Hex())
		fmt.Fprintf(tw, "deployed:\t%t\n", wl.Deployed)
		if !wl.RegisteredZkAddr.IsZero() {
			fmt.Fprintf(tw, "linked zk address:\t%s\n", wl.RegisteredZkAddr.Hex())
		}
		for _, o := range wl.Owners {
			fmt.Fprintf(tw, "owner %d:\t%s\t%s\n", o.Index, o.Owner(), o.Classification)
		}
	}
	if snap.ProofCached {
		fmt.Fprintf(tw, "proof:\tcached\n")
	}
	if snap.LastTx != (common.Hash{}) {
		fmt.Fprintf(tw, "last tx:\t%s\n", snap.LastTx.Hex())
	}
}
