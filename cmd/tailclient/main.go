// tailclient attaches a sync session to a live meeting and prints
// transcript segments to stdout as they arrive.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"meeting-sync-service/internal/config"
	"meeting-sync-service/internal/models"
	"meeting-sync-service/internal/poll"
	"meeting-sync-service/internal/provider"
	"meeting-sync-service/internal/push"
	"meeting-sync-service/internal/sync"
)

func main() {
	meetingFlag := flag.String("meeting", "", "meeting id (platform/nativeMeetingId)")
	apiURL := flag.String("api-url", "https://api.cloud.vexa.ai", "provider REST base URL")
	wsURL := flag.String("ws-url", "wss://api.cloud.vexa.ai/ws", "provider WebSocket base URL")
	preferPush := flag.Bool("push", true, "prefer the push channel over polling")
	flag.Parse()

	meeting, err := models.ParseMeetingID(*meetingFlag)
	if err != nil {
		log.Fatalf("invalid -meeting: %v", err)
	}

	creds := config.ProviderConfig{
		APIKey:  os.Getenv("VEXA_API_KEY"),
		BaseURL: *apiURL,
		WSURL:   *wsURL,
	}
	if !creds.HasAPIKey() {
		log.Fatal("VEXA_API_KEY is not set")
	}

	providerClient := provider.NewClient(creds)
	syncCfg := config.Load().Sync

	controller := sync.NewController(sync.Config{
		Meeting:    meeting,
		PreferPush: *preferPush,
		Push:       push.NewClient(meeting, creds, push.DefaultOptions()),
		Poller:     poll.New(providerClient, meeting, syncCfg.PollInterval),
		Bots:       providerClient,
	})

	controller.SetOnSegments(func(batch []models.Segment) {
		for _, seg := range batch {
			marker := " "
			if !seg.Final {
				marker = "~"
			}
			fmt.Printf("[%s]%s %s: %s\n",
				seg.AbsoluteTime.Format("15:04:05"), marker, seg.Speaker, seg.Text)
		}
	})
	controller.SetOnError(func(err error) {
		fmt.Fprintf(os.Stderr, "sync error: %v\n", err)
	})
	controller.SetOnStatus(func(status string) {
		fmt.Fprintf(os.Stderr, "meeting status: %s\n", status)
	})

	if err := controller.Start(context.Background()); err != nil {
		log.Fatalf("start sync: %v", err)
	}
	log.Printf("Tailing %s (%s)", meeting, controller.ConnectionState())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	controller.Release()
	log.Printf("Done: %d segments, %d speakers", controller.SegmentCount(), controller.ParticipantCount())
}
