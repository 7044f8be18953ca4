// 版权所有 2026 StudioFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 frames 通过外部 ffmpeg 进程从已上传的视频中截取单帧。

输出文件名由视频文件名与时间戳决定，同一帧只提取一次，之后直接
复用磁盘上的文件；并发的相同请求经 singleflight 合并为一次 ffmpeg
调用。视频文件名只接受 uploads 目录下的裸文件名，拒绝路径穿越。
*/
package frames
