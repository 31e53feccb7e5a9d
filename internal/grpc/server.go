package grpc

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"gw-auth-service/internal/apperr"
	"gw-auth-service/internal/security"
)

// Имена сервиса и метода
const (
	TokenServiceName = "gwauth.TokenService"
	introspectMethod = "/" + TokenServiceName + "/Introspect"
)

// TokenIntrospector проверяет токены для других сервисов
type TokenIntrospector interface {
	Introspect(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
}

// TokenServiceDesc описание сервиса; сообщения используют стандартные типы protobuf
var TokenServiceDesc = grpc.ServiceDesc{
	ServiceName: TokenServiceName,
	HandlerType: (*TokenIntrospector)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Introspect",
			Handler:    introspectHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gwauth/token.proto",
}

func introspectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenIntrospector).Introspect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: introspectMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TokenIntrospector).Introspect(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterTokenServer регистрирует реализацию сервиса
func RegisterTokenServer(s grpc.ServiceRegistrar, srv TokenIntrospector) {
	s.RegisterService(&TokenServiceDesc, srv)
}

// TokenServer реализует gRPC сервис TokenService поверх цепочки аутентификации
type TokenServer struct {
	auth   *security.Authenticator
	logger *logrus.Logger
}

// NewTokenServer создает новый экземпляр TokenServer
func NewTokenServer(auth *security.Authenticator, logger *logrus.Logger) *TokenServer {
	return &TokenServer{
		auth:   auth,
		logger: logger,
	}
}

// Introspect проверяет токен и возвращает данные пользователя
func (s *TokenServer) Introspect(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	identity, err := s.auth.AuthenticateToken(ctx, req.GetValue())
	if err != nil {
		if apperr.Is(err, apperr.KindStore) {
			s.logger.Errorf("Token introspection failed: %v", err)
		} else {
			s.logger.Debugf("Token introspection rejected: %v", err)
		}
		return nil, status.Error(codes.Unauthenticated, security.MsgInvalidToken)
	}

	result, err := structpb.NewStruct(map[string]interface{}{
		"userId": identity.UserID().String(),
		"email":  identity.Email(),
		"role":   string(identity.Role()),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to build response: %v", err)
	}
	return result, nil
}

// NewServer создает gRPC сервер с сервисом токенов и health-сервисом
func NewServer(auth *security.Authenticator, logger *logrus.Logger) *grpc.Server {
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(LoggingInterceptor(logger)),
	)

	RegisterTokenServer(srv, NewTokenServer(auth, logger))

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(TokenServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, healthSrv)

	return srv
}

// LoggingInterceptor создает interceptor для логирования gRPC запросов
func LoggingInterceptor(log *logrus.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		if err != nil {
			log.Warnf("gRPC method: %s, duration: %v, code: %s", info.FullMethod, duration, status.Code(err))
		} else {
			log.Infof("gRPC method: %s, duration: %v, status: success", info.FullMethod, duration)
		}

		return resp, err
	}
}
