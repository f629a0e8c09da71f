//go:build protogen

package directory

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/md-rashed-zaman/schedcore/libs/grpcx"
	directoryv1 "github.com/md-rashed-zaman/schedcore/protos/gen/directory/v1"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/model"
)

type grpcProvider struct {
	client directoryv1.DirectoryServiceClient
}

// NewRemoteProvider dials the participant directory service.
func NewRemoteProvider(addr string) (Provider, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcProvider{client: directoryv1.NewDirectoryServiceClient(conn)}, nil
}

func (p *grpcProvider) GetProfessional(ctx context.Context, id string) (Professional, error) {
	resp, err := p.client.GetProfessional(ctx, &directoryv1.GetProfessionalRequest{Id: id})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Professional{}, fmt.Errorf("professional %s: %w", id, model.ErrNotFound)
		}
		return Professional{}, err
	}
	prof := Professional{
		ID:                 resp.GetId(),
		ConfirmationPolicy: ConfirmationPolicy(resp.GetConfirmationPolicy()),
		ReschedulePolicy:   ReschedulePolicy(resp.GetReschedulePolicy()),
		NoShowGrace:        time.Duration(resp.GetNoShowGraceMinutes()) * time.Minute,
	}
	if prof.ConfirmationPolicy == "" {
		prof.ConfirmationPolicy = ConfirmAuto
	}
	if prof.ReschedulePolicy == "" {
		prof.ReschedulePolicy = RescheduleKeepConfirmed
	}
	return prof, nil
}

func (p *grpcProvider) GetClient(ctx context.Context, id string) (Client, error) {
	resp, err := p.client.GetClient(ctx, &directoryv1.GetClientRequest{Id: id})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Client{}, fmt.Errorf("client %s: %w", id, model.ErrNotFound)
		}
		return Client{}, err
	}
	return Client{ID: resp.GetId()}, nil
}
