// internal/chains/tron/network.go
package tron

import "fmt"

// Well-known TRC20 USDT contracts
const (
	USDTContractMainnet = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
	USDTContractShasta  = "TG3XXyExBkPp9nzdajDZsozEu4BkaSJozs"
	USDTContractNile    = "TXYZopYRdj2D9XRtbG411XZZ3kM5VkAeBf"
)

// Network holds the public TronGrid endpoints of one TRON network.
type Network struct {
	Name         string
	HTTPURL      string
	GRPCURL      string
	USDTContract string
}

func LookupNetwork(name string) (Network, error) {
	switch name {
	case "mainnet":
		return Network{name, "https://api.trongrid.io", "grpc.trongrid.io:50051", USDTContractMainnet}, nil
	case "shasta":
		return Network{name, "https://api.shasta.trongrid.io", "grpc.shasta.trongrid.io:50051", USDTContractShasta}, nil
	case "nile":
		return Network{name, "https://api.nile.trongrid.io", "grpc.nile.trongrid.io:50051", USDTContractNile}, nil
	default:
		return Network{}, fmt.Errorf("unsupported network: %s", name)
	}
}
