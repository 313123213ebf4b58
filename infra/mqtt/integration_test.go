package mqtt

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/sunledger/core/ledger"
	coremetrics "github.com/kilianp07/sunledger/core/metrics"
)

// TestIntegration publishes a reading through a real Mosquitto broker.
func TestIntegration(t *testing.T) {
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}
	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start container: %v", err)
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "1883")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}
	broker := fmt.Sprintf("tcp://%s:%s", host, port.Port())

	sub := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("probe"))
	var connectErr error
	for i := 0; i < 5; i++ {
		tok := sub.Connect()
		tok.Wait()
		if connectErr = tok.Error(); connectErr == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if connectErr != nil {
		t.Fatalf("failed to connect: %v", connectErr)
	}
	defer sub.Disconnect(100)

	msgCh := make(chan string, 1)
	if tok := sub.Subscribe("it/reading", 1, func(_ paho.Client, m paho.Message) {
		msgCh <- string(m.Payload())
	}); tok.Wait() && tok.Error() != nil {
		t.Fatalf("failed to subscribe: %v", tok.Error())
	}

	cli, err := NewPahoClient(Config{Enabled: true, Broker: broker, ClientID: "pub", TopicPrefix: "it"})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer cli.Disconnect()

	pub := NewPublisher(cli, "it")
	if err := pub.RecordReading(coremetrics.ReadingEvent{Day: "2024-06-01", Record: ledger.ReadingRecord{Window: 1}}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-msgCh:
		if got == "" {
			t.Fatalf("empty payload")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}
