package samcore

import (
	"os"

	"github.com/samnetworks/samcore/src/client"
	"github.com/samnetworks/samcore/src/config"
	"github.com/samnetworks/samcore/src/net"
	"github.com/samnetworks/samcore/src/packet"
)

// This example starts a hub and a node that serves one custom API. It
// illustrates the two halves of the core: the hub engine, and the client
// library a node embeds.
func Example() {
	// Start from default configuration.
	conf := config.NewDefaultConfig()

	// Instantiate the engine.
	engine := NewSamCore(conf)

	// Open the settings store, bind the socket and build the hub.
	if err := engine.Init(); err != nil {
		conf.Logger().Error("Cannot initialize samcore:", err)
		os.Exit(1)
	}

	// Run the hub asynchronously.
	go engine.Run()
	defer engine.Shutdown()

	// A node is a client with handlers. Its echo API mutates the packet
	// and emits the reply through the hub.
	echo := client.NewClient("echo", conf.HubName, net.UnixDialer(conf.SocketPath()), conf.Logger())
	echo.AddAPICall("echo", func(p *packet.Packet) {
		p.Result = p.Args
		echo.Return(p)
	})

	// Run blocks through the startup barrier: connect, register, green
	// light, then handler binding.
	if err := echo.Run(); err != nil {
		conf.Logger().Error("Cannot start node:", err)
		os.Exit(1)
	}
	defer echo.Shutdown()
}
