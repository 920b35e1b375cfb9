package binding

import (
	"context"

	"codeberg.org/mutker/whistlectl/internal/errors"
	"codeberg.org/mutker/whistlectl/internal/logger"
	"codeberg.org/mutker/whistlectl/internal/whistle"
)

// DogLister fetches the dogs visible to the account
type DogLister interface {
	Dogs(ctx context.Context, token string) ([]whistle.Dog, error)
}

// DeviceResolver maps dog ids to tracker device ids
type DeviceResolver struct {
	dogs DogLister
	log  logger.Logger
}

func NewDeviceResolver(dogs DogLister) *DeviceResolver {
	return &DeviceResolver{
		dogs: dogs,
		log:  logger.New("binding"),
	}
}

// ResolveDeviceID scans dogs.json for the first exact id match and returns
// its device id. A miss yields ErrDeviceNotFound and is never retried here.
func (r *DeviceResolver) ResolveDeviceID(ctx context.Context, dogID, token string) (string, error) {
	r.log.Debug().Str("dog_id", dogID).Msg("Looking for dog")

	dogs, err := r.dogs.Dogs(ctx, token)
	if err != nil {
		return "", err
	}

	for _, dog := range dogs {
		r.log.Info().Str("dog_id", dog.ID.String()).Str("name", dog.Name.String()).Msg("Found dog")
		if dog.ID.String() == dogID {
			r.log.Debug().Str("dog_id", dogID).Str("device_id", dog.DeviceID.String()).Msg("Match found")
			return dog.DeviceID.String(), nil
		}
	}

	return "", errors.New().WithData(ErrDeviceNotFound, dogID)
}
