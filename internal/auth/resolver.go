package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

// AuthorizationMetadataKey — ключ gRPC metadata с Bearer-токеном.
const AuthorizationMetadataKey = "authorization"

type actorKey struct{}

// WithActor сохраняет actor в контексте запроса.
func WithActor(ctx context.Context, actor *domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext возвращает actor запроса или nil для анонимного вызова.
func ActorFromContext(ctx context.Context) *domain.Actor {
	actor, _ := ctx.Value(actorKey{}).(*domain.Actor)
	return actor
}

// Resolver превращает токен в Actor по профилю сотрудника.
type Resolver struct {
	issuer   *Issuer
	profiles domain.ProfileRepository
}

// NewResolver создаёт Resolver.
func NewResolver(issuer *Issuer, profiles domain.ProfileRepository) *Resolver {
	return &Resolver{issuer: issuer, profiles: profiles}
}

// Resolve проверяет токен и загружает профиль. Неактивный профиль или чужая
// организация в токене дают ErrForbidden.
func (r *Resolver) Resolve(ctx context.Context, rawToken string) (*domain.Actor, error) {
	claims, err := r.issuer.Parse(rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}

	profile, err := r.profiles.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if !profile.Active {
		return nil, fmt.Errorf("%w: profile %s is inactive", domain.ErrForbidden, profile.UserID)
	}
	if claims.OrgID != "" && claims.OrgID != profile.OrgID {
		return nil, fmt.Errorf("%w: token organization mismatch", domain.ErrForbidden)
	}

	actor := domain.ActorFromProfile(profile)
	return &actor, nil
}

// UnaryServerInterceptor кладёт Actor в контекст. Запрос без заголовка authorization
// проходит анонимно: сервисы сами отклонят его, если действие требует прав.
func UnaryServerInterceptor(resolver *Resolver, logger *log.Entry) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = log.WithField("component", "auth")
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		raw, ok := bearerToken(ctx)
		if !ok {
			return handler(ctx, req)
		}
		if raw == "" {
			return nil, status.Error(codes.Unauthenticated, "authorization must be a bearer token")
		}

		actor, err := resolver.Resolve(ctx, raw)
		if err != nil {
			logger.WithError(err).WithField("method", info.FullMethod).Warn("authentication failed")
			switch {
			case errors.Is(err, domain.ErrUnauthenticated):
				return nil, status.Error(codes.Unauthenticated, err.Error())
			case errors.Is(err, domain.ErrForbidden):
				return nil, status.Error(codes.PermissionDenied, err.Error())
			default:
				return nil, status.Error(codes.Internal, err.Error())
			}
		}
		return handler(WithActor(ctx, actor), req)
	}
}

// bearerToken возвращает токен и признак наличия заголовка.
func bearerToken(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	values := md.Get(AuthorizationMetadataKey)
	if len(values) == 0 {
		return "", false
	}
	header := strings.TrimSpace(values[0])
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", true
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
