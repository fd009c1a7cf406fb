package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/profitpal/internal/common"
	"github.com/dmitrijs2005/profitpal/internal/ledgerapi"
	"github.com/dmitrijs2005/profitpal/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const serviceKey ctxKey = "service"

var ledgerPrefix = "/" + ledgerapi.ServiceName + "/"

// callerService returns the service name taken from the caller's token.
func callerService(ctx context.Context) string {
	s, _ := ctx.Value(serviceKey).(string)
	return s
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	if strings.HasPrefix(info.FullMethod, ledgerPrefix) {

		var accessToken string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			values := md.Get(common.AccessTokenHeaderName)
			if len(values) > 0 {
				accessToken = values[0]
			}
		}
		if len(accessToken) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing token")
		}

		service, err := auth.GetServiceFromToken(accessToken, s.jwtSecret)
		if err != nil {
			if errors.Is(err, common.ErrTokenExpired) {
				return nil, status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
			}
			return nil, status.Error(codes.Unauthenticated, common.ErrInvalidToken.Error())
		}

		ctx = context.WithValue(ctx, serviceKey, service)

	}

	return handler(ctx, req)
}
