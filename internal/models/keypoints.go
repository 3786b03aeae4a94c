package models

import "fmt"

// KeypointNames 17 个标准人体关键点（模型输出顺序）
var KeypointNames = [17]string{
	"nose", "left eye", "right eye", "left ear", "right ear",
	"left shoulder", "right shoulder", "left elbow", "right elbow",
	"left wrist", "right wrist", "left hip", "right hip",
	"left knee", "right knee", "left ankle", "right ankle",
}

// 关键点下标
const (
	KPNose = iota
	KPLeftEye
	KPRightEye
	KPLeftEar
	KPRightEar
	KPLeftShoulder
	KPRightShoulder
	KPLeftElbow
	KPRightElbow
	KPLeftWrist
	KPRightWrist
	KPLeftHip
	KPRightHip
	KPLeftKnee
	KPRightKnee
	KPLeftAnkle
	KPRightAnkle
)

// KeypointSubset 关键点截取策略
type KeypointSubset string

const (
	SubsetUpper13   KeypointSubset = "upper13"   // 前 13 个（头部 + 上肢 + 髋）
	SubsetCurated11 KeypointSubset = "curated11" // 早期版本：前 11 个
	SubsetAll       KeypointSubset = "all"
)

// ParseKeypointSubset 解析截取策略
func ParseKeypointSubset(s string) (KeypointSubset, error) {
	switch KeypointSubset(s) {
	case SubsetUpper13, SubsetCurated11, SubsetAll:
		return KeypointSubset(s), nil
	}
	return "", fmt.Errorf("unknown keypoint subset: %s", s)
}

// Size 截取数量
func (s KeypointSubset) Size() int {
	switch s {
	case SubsetCurated11:
		return 11
	case SubsetAll:
		return len(KeypointNames)
	default:
		return 13
	}
}

// SkeletonEdge 骨架连线（两个关键点下标）
type SkeletonEdge struct {
	From int
	To   int
}

// 骨架连线（静态配置）
var (
	FaceEdges = []SkeletonEdge{
		{KPNose, KPLeftEye}, {KPNose, KPRightEye},
		{KPLeftEye, KPLeftEar}, {KPRightEye, KPRightEar},
	}
	ArmEdges = []SkeletonEdge{
		{KPLeftShoulder, KPLeftElbow}, {KPLeftElbow, KPLeftWrist},
		{KPRightShoulder, KPRightElbow}, {KPRightElbow, KPRightWrist},
	}
	TorsoEdges = []SkeletonEdge{
		{KPLeftShoulder, KPRightShoulder},
		{KPLeftShoulder, KPLeftHip}, {KPRightShoulder, KPRightHip},
		{KPLeftHip, KPRightHip},
	}
)

// DefaultSkeleton 默认骨架（面部 + 手臂 + 躯干）
func DefaultSkeleton() []SkeletonEdge {
	edges := make([]SkeletonEdge, 0, len(FaceEdges)+len(ArmEdges)+len(TorsoEdges))
	edges = append(edges, FaceEdges...)
	edges = append(edges, ArmEdges...)
	edges = append(edges, TorsoEdges...)
	return edges
}
