package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"shortclaim/internal/claim"
	"shortclaim/internal/config"
	"shortclaim/internal/dnsproof"
	"shortclaim/internal/model"
)

const ownerRecordTTL = 300

type route53API interface {
	ListHostedZones(ctx context.Context, in *route53.ListHostedZonesInput, opts ...func(*route53.Options)) (*route53.ListHostedZonesOutput, error)
	ChangeResourceRecordSets(ctx context.Context, in *route53.ChangeResourceRecordSetsInput, opts ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
}

type ZoneCache interface {
	GetCachedZones() ([]model.HostedZone, bool)
	CacheZones(zones []model.HostedZone) error
}

// ZoneService publishes _ens owner records into Route53 hosted zones run by
// the operator.
type ZoneService struct {
	client       route53API
	allowedZones map[string]string
	cache        ZoneCache
	log          *zap.Logger
}

func NewZoneService(ctx context.Context, cfg *config.Config, cache ZoneCache, log *zap.Logger) (*ZoneService, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWS.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AWS.AccessKeyID,
				cfg.AWS.SecretAccessKey,
				"",
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	allowed := make(map[string]string)
	for _, z := range cfg.HostedZones {
		allowed[z.ID] = z.Label
	}
	return &ZoneService{
		client:       route53.NewFromConfig(awsCfg),
		allowedZones: allowed,
		cache:        cache,
		log:          log,
	}, nil
}

func (s *ZoneService) ListZones(ctx context.Context) ([]model.HostedZone, error) {
	if s.cache != nil {
		if zones, ok := s.cache.GetCachedZones(); ok {
			return zones, nil
		}
	}

	var zones []model.HostedZone
	input := &route53.ListHostedZonesInput{}
	for {
		result, err := s.client.ListHostedZones(ctx, input)
		if err != nil {
			return nil, err
		}
		for _, z := range result.HostedZones {
			zoneID := extractZoneID(aws.ToString(z.Id))
			if !s.isAllowed(zoneID) {
				continue
			}
			zones = append(zones, model.HostedZone{
				ID:    zoneID,
				Name:  aws.ToString(z.Name),
				Label: s.allowedZones[zoneID],
			})
		}
		if !result.IsTruncated {
			break
		}
		input.Marker = result.NextMarker
	}

	if s.cache != nil {
		_ = s.cache.CacheZones(zones)
	}
	return zones, nil
}

// PublishOwner upserts the _ens TXT record for domain in zoneID so that it
// names address as the claimant.
func (s *ZoneService) PublishOwner(ctx context.Context, zoneID, domain, address string) error {
	if !s.isAllowed(zoneID) {
		return fmt.Errorf("zone %s is not in the allowed list", zoneID)
	}
	if !claim.IsEligible(domain) {
		return claim.ErrIneligible
	}
	if !common.IsHexAddress(address) || !strings.HasPrefix(address, "0x") {
		return fmt.Errorf("invalid owner address %q", address)
	}

	zones, err := s.ListZones(ctx)
	if err != nil {
		return err
	}
	var zone *model.HostedZone
	for i := range zones {
		if zones[i].ID == zoneID {
			zone = &zones[i]
		}
	}
	if zone == nil {
		return fmt.Errorf("zone %s not found", zoneID)
	}
	zoneName := strings.TrimSuffix(zone.Name, ".")
	if domain != zoneName && !strings.HasSuffix(domain, "."+zoneName) {
		return fmt.Errorf("%s is not inside zone %s", domain, zoneName)
	}

	name := dnsproof.TXTName(domain)
	_, err = s.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &types.ChangeBatch{
			Comment: aws.String("Owner record via shortclaim"),
			Changes: []types.Change{
				{
					Action: types.ChangeActionUpsert,
					ResourceRecordSet: &types.ResourceRecordSet{
						Name: aws.String(name),
						Type: types.RRTypeTxt,
						TTL:  aws.Int64(ownerRecordTTL),
						ResourceRecords: []types.ResourceRecord{
							{Value: aws.String(`"a=` + address + `"`)},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert %s: %w", name, err)
	}
	s.log.Info("owner record published", zap.String("zone", zoneID), zap.String("name", name), zap.String("owner", address))
	return nil
}

func (s *ZoneService) isAllowed(zoneID string) bool {
	if len(s.allowedZones) == 0 {
		return true
	}
	_, ok := s.allowedZones[zoneID]
	return ok
}

func extractZoneID(fullID string) string {
	parts := strings.Split(fullID, "/")
	return parts[len(parts)-1]
}
