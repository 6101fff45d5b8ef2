package feed

import (
	"time"

	gtfsrt "github.com/jamespfennell/gtfs/proto"
	"google.golang.org/protobuf/proto"
)

// StopTime describes a stop time update for NewTripEntity.
// A zero Arrival or Departure leaves that event unset.
type StopTime struct {
	StopID    string
	Arrival   int64
	Departure int64
}

// NewTripEntity builds a feed entity carrying a trip update for route
func NewTripEntity(id, route string, stops ...StopTime) *gtfsrt.FeedEntity {
	updates := make([]*gtfsrt.TripUpdate_StopTimeUpdate, 0, len(stops))
	for _, st := range stops {
		update := &gtfsrt.TripUpdate_StopTimeUpdate{StopId: proto.String(st.StopID)}
		if st.Arrival != 0 {
			update.Arrival = &gtfsrt.TripUpdate_StopTimeEvent{Time: proto.Int64(st.Arrival)}
		}
		if st.Departure != 0 {
			update.Departure = &gtfsrt.TripUpdate_StopTimeEvent{Time: proto.Int64(st.Departure)}
		}
		updates = append(updates, update)
	}

	return &gtfsrt.FeedEntity{
		Id: proto.String(id),
		TripUpdate: &gtfsrt.TripUpdate{
			Trip: &gtfsrt.TripDescriptor{
				TripId:  proto.String(id),
				RouteId: proto.String(route),
			},
			StopTimeUpdate: updates,
		},
	}
}

// NewVehicleEntity builds an entity with only a vehicle position
func NewVehicleEntity(id, route string) *gtfsrt.FeedEntity {
	return &gtfsrt.FeedEntity{
		Id: proto.String(id),
		Vehicle: &gtfsrt.VehiclePosition{
			Trip: &gtfsrt.TripDescriptor{RouteId: proto.String(route)},
		},
	}
}

// NewFeedMessage wraps entities in a message with a valid header
func NewFeedMessage(now time.Time, entities ...*gtfsrt.FeedEntity) *gtfsrt.FeedMessage {
	return &gtfsrt.FeedMessage{
		Header: &gtfsrt.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
		Entity: entities,
	}
}

// MarshalFeed encodes a message the way the upstream serves it
func MarshalFeed(message *gtfsrt.FeedMessage) ([]byte, error) {
	return proto.Marshal(message)
}
